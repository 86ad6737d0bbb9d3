package main

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"fitcoach-controlplane/pkg/config"
	"fitcoach-controlplane/pkg/db"
	"fitcoach-controlplane/pkg/gen"
	"fitcoach-controlplane/pkg/logger"
	"fitcoach-controlplane/pkg/redis"
	"fitcoach-controlplane/pkg/sequence"
	"fitcoach-controlplane/services/bootstrap"
	"fitcoach-controlplane/services/delivery"
	"fitcoach-controlplane/services/tenant"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Seeds a trainer, a client and a pending training plan assignment for the
// platform tenant, then exits.
func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		gen.Module,
		sequence.Module,
		tenant.Module,
		bootstrap.Module,
		fx.Invoke(registerSeed),
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

type seedParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Shutdown  fx.Shutdowner
	Config    *config.Config
	DB        *gorm.DB
	Node      *snowflake.Node
	Seq       sequence.Generator
}

func registerSeed(p seedParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := seed(ctx, p); err != nil {
				zap.L().Error("[seed] failed", zap.Error(err))
				return err
			}
			return p.Shutdown.Shutdown()
		},
	})
}

func seed(ctx context.Context, p seedParams) error {
	tenantID := p.Config.Platform.ID
	if tenantID == "" {
		zap.L().Warn("[seed] PLATFORM.TENANT_ID not set, nothing to seed")
		return nil
	}

	clientCode, err := p.Seq.NextClientCode(ctx, tenantID)
	if err != nil {
		return err
	}

	content, err := json.Marshal(delivery.PlanContent{
		Name:            "Starter Strength",
		Description:     "Full body sessions to build a base.",
		DurationWeeks:   8,
		WorkoutsPerWeek: 3,
		Exercises: []delivery.ContentExercise{
			{Name: "Goblet Squat", Sets: 3, Reps: "10", RestSeconds: 90},
			{Name: "Push Up", Sets: 3, Reps: "AMRAP", RestSeconds: 60},
			{Name: "Dumbbell Row", Sets: 3, Reps: "12", RestSeconds: 60},
		},
	})
	if err != nil {
		return err
	}

	trainer := &delivery.TeamMember{ID: p.Node.Generate().String(), TenantID: tenantID, FirstName: "Demo", LastName: "Coach"}
	client := &delivery.Client{
		ID:         p.Node.Generate().String(),
		TenantID:   tenantID,
		ClientCode: clientCode,
		FirstName:  "Demo",
		LastName:   "Client",
		Phone:      "6281234567890",
	}
	plan := &delivery.Plan{ID: p.Node.Generate().String(), TenantID: tenantID, Name: "Starter Strength", PlanType: delivery.PlanTypeTraining}
	version := &delivery.PlanVersion{ID: p.Node.Generate().String(), PlanID: plan.ID, VersionNumber: 1, Content: datatypes.JSON(content)}
	start := time.Now().UTC()
	assignment := &delivery.PlanAssignment{
		ID:              p.Node.Generate().String(),
		TenantID:        tenantID,
		PlanID:          plan.ID,
		VersionID:       version.ID,
		ClientID:        client.ID,
		AssignedBy:      trainer.ID,
		StartDate:       &start,
		DeliveryChannel: delivery.ChannelMessaging,
		DeliveryStatus:  delivery.StatusPending,
	}

	err = p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range []any{trainer, client, plan, version, assignment} {
			if err := tx.Create(row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	zap.L().Info("[seed] demo assignment created",
		zap.String("tenant_id", tenantID),
		zap.String("assignment_id", assignment.ID),
		zap.String("client_code", clientCode))
	return nil
}
