package renderer

import (
	"context"
	"fmt"
	"time"

	"fitcoach-controlplane/pkg/errutil"
	"fitcoach-controlplane/pkg/logger"
	"fitcoach-controlplane/pkg/sequence"

	"github.com/gosimple/slug"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

//go:generate mockgen -destination=mock_renderer/mock_renderer.go -package=mock_renderer . Renderer

const contentTypePDF = "application/pdf"

// Renderer produces a stored PDF for a document. Every call creates a new
// artifact.
type Renderer interface {
	Render(ctx context.Context, doc Document) (*Artifact, error)
}

type PDFRenderer struct {
	templates *Templates
	converter Converter
	store     ArtifactStore
	seq       sequence.Generator
	now       func() time.Time
}

func NewPDFRenderer(templates *Templates, converter Converter, store ArtifactStore, seq sequence.Generator) *PDFRenderer {
	return &PDFRenderer{
		templates: templates,
		converter: converter,
		store:     store,
		seq:       seq,
		now:       time.Now,
	}
}

func (r *PDFRenderer) Render(ctx context.Context, doc Document) (*Artifact, error) {
	ctx, span := otel.Tracer("renderer").Start(ctx, "renderer.Render")
	defer span.End()

	head := doc.Head()
	span.SetAttributes(
		attribute.String("tenant_id", head.TenantID),
		attribute.String("document.kind", string(doc.Kind())),
	)
	zapLog := logger.WithContext(ctx,
		zap.String("tenant_id", head.TenantID),
		zap.String("kind", string(doc.Kind())),
		zap.String("reference_id", head.ReferenceID),
	)

	html, err := r.templates.HTML(doc)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, errutil.Internal("failed to build document", err)
	}

	pdf, err := r.converter.Convert(ctx, html)
	if err != nil {
		zapLog.Error("failed to convert document", zap.Error(err))
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	code, err := r.seq.NextArtifactCode(ctx, head.TenantID)
	if err != nil {
		// the sequence only makes keys readable; a timestamp keeps them unique
		zapLog.Warn("artifact sequence unavailable, using timestamp", zap.Error(err))
		code = fmt.Sprintf("%d", r.now().UnixMilli())
	}

	key := ObjectKey(head.TenantID, head.ClientCode, head.ReferenceID, code)
	if err := r.store.Put(ctx, key, pdf, contentTypePDF); err != nil {
		zapLog.Error("failed to store document", zap.String("object_key", key), zap.Error(err))
		span.SetStatus(codes.Error, err.Error())
		return nil, errutil.BadGateway("failed to store document", err)
	}

	url, err := r.store.URL(ctx, key)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, errutil.BadGateway("failed to resolve document url", err)
	}

	zapLog.Info("document rendered", zap.String("object_key", key), zap.Int("size", len(pdf)))

	return &Artifact{
		URL:         url,
		ObjectKey:   key,
		Size:        int64(len(pdf)),
		ContentType: contentTypePDF,
	}, nil
}

// ObjectKey is plans/{tenant}/{client}_{reference}_{code}.pdf with the client
// code slugged.
func ObjectKey(tenantID, clientCode, referenceID, code string) string {
	client := slug.Make(clientCode)
	if client == "" {
		client = "client"
	}
	return fmt.Sprintf("plans/%s/%s_%s_%s.pdf", tenantID, client, referenceID, code)
}
