package renderer

import (
	"fitcoach-controlplane/pkg/config"
	"fitcoach-controlplane/pkg/sequence"

	"github.com/minio/minio-go/v7"
	"go.uber.org/fx"
)

var Module = fx.Module("renderer",
	fx.Provide(
		NewTemplates,
		provideConverter,
		provideStore,
		provideRenderer,
	),
)

func provideConverter(cfg *config.Config) Converter {
	return NewGotenbergConverter(cfg.Renderer.ConverterURL, cfg.Delivery.StepTimeout)
}

func provideStore(cfg *config.Config, client *minio.Client) ArtifactStore {
	return NewMinioStore(client, cfg.Minio.BucketName, cfg.Renderer.PublicBaseURL, cfg.Renderer.URLTTL)
}

func provideRenderer(t *Templates, c Converter, s ArtifactStore, seq sequence.Generator) Renderer {
	return NewPDFRenderer(t, c, s, seq)
}
