package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/recursiadx/internal/adapters/cache"
	"github.com/zatekoja/recursiadx/internal/adapters/database"
	"github.com/zatekoja/recursiadx/internal/adapters/events"
	"github.com/zatekoja/recursiadx/internal/adapters/search"
	"github.com/zatekoja/recursiadx/internal/application/services"
	"github.com/zatekoja/recursiadx/internal/domain/entities"
	"github.com/zatekoja/recursiadx/internal/domain/repositories"
	"github.com/zatekoja/recursiadx/internal/domain/workflow"
	"github.com/zatekoja/recursiadx/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/recursiadx/internal/infrastructure/clients/typesense"
	"github.com/zatekoja/recursiadx/internal/infrastructure/observability"
	"github.com/zatekoja/recursiadx/pkg/config"
	apperrors "github.com/zatekoja/recursiadx/pkg/errors"
)

const seedPassword = "Password123!"

var seedUsers = []services.RegisterInput{
	{Name: "Dr. Amara Okafor", Email: "pathologist@recursiadx.local", Role: "Pathologist", Department: "Histopathology", LicenseNumber: "MDCN-44120"},
	{Name: "Tunde Bello", Email: "technician@recursiadx.local", Role: "Lab Technician", Department: "Histology Lab"},
	{Name: "Dr. Kemi Adeyemi", Email: "resident@recursiadx.local", Role: "Resident", Department: "Histopathology"},
	{Name: "Lab Admin", Email: "admin@recursiadx.local", Role: "Admin"},
}

func age(n int) *int { return &n }

var seedSamples = []services.SampleInput{
	{
		PatientInfo:    entities.PatientInfo{PatientID: "PT-10001", Name: "Ngozi Eze", Age: age(54), Gender: "Female"},
		ClinicalInfo:   entities.ClinicalInfo{OrderingPhysician: "Dr. Musa", ProvisionalDiagnosis: "Breast lump, left upper quadrant"},
		SpecimenType:   "Core biopsy",
		AnatomicalSite: "Breast",
		Priority:       entities.PriorityUrgent,
	},
	{
		PatientInfo:    entities.PatientInfo{PatientID: "PT-10002", Name: "Chinedu Obi", Age: age(67), Gender: "Male"},
		ClinicalInfo:   entities.ClinicalInfo{OrderingPhysician: "Dr. Lawal", ClinicalHistory: "Elevated PSA"},
		SpecimenType:   "Needle biopsy",
		AnatomicalSite: "Prostate",
		Priority:       entities.PriorityRoutine,
	},
	{
		PatientInfo:    entities.PatientInfo{PatientID: "PT-10003", Name: "Fatima Sani", Age: age(41), Gender: "Female"},
		ClinicalInfo:   entities.ClinicalInfo{OrderingPhysician: "Dr. Musa", ProvisionalDiagnosis: "Cervical lesion"},
		SpecimenType:   "Punch biopsy",
		AnatomicalSite: "Cervix",
		Priority:       entities.PrioritySTAT,
	},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger("recursiadx-seed", cfg.Env)

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to DB")
	}
	defer pgClient.Close()

	if err := database.Migrate(cfg.Database.MigrationURL()); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	ctx := context.Background()

	if os.Getenv("RESET_DB") == "true" {
		log.Info().Msg("RESET_DB=true detected, truncating tables before seeding")
		if _, err := pgClient.DB().ExecContext(ctx, `TRUNCATE TABLE reports, samples, id_sequences, users`); err != nil {
			log.Fatal().Err(err).Msg("Failed to truncate tables")
		}
	}

	var searchRepo repositories.SampleSearchRepository
	if cfg.Typesense.Enabled {
		if tsClient, err := typesense.NewClient(&cfg.Typesense); err == nil {
			adapter := search.NewTypesenseAdapter(tsClient)
			if err := adapter.InitSchema(ctx); err != nil {
				log.Warn().Err(err).Msg("Failed to init Typesense schema")
			}
			searchRepo = adapter
		}
	}

	users := database.NewUserAdapter(pgClient)
	authService := services.NewAuthService(users, cache.NewLRUAdapter(100, 0), cfg.Auth)
	sampleService := services.NewSampleService(
		database.NewSampleAdapter(pgClient),
		searchRepo,
		users,
		database.NewSequenceAdapter(pgClient),
		events.NewMemoryEventBus(),
		workflow.NewMachine(workflow.TerminalPolicy(cfg.Workflow.TerminalPolicy)),
		nil,
	)

	var technician entities.Actor
	for _, input := range seedUsers {
		input.Password = seedPassword
		user, err := authService.Provision(ctx, input)
		switch {
		case apperrors.IsType(err, apperrors.ErrorTypeConflict):
			log.Info().Str("email", input.Email).Msg("User already exists, skipping")
			continue
		case err != nil:
			log.Fatal().Err(err).Str("email", input.Email).Msg("Failed to create user")
		}
		log.Info().Str("email", input.Email).Str("role", string(user.Role)).Msg("Created user")
		if user.Role == entities.RoleLabTechnician {
			technician = entities.Actor{UserID: user.ID, Name: user.Name, Role: user.Role}
		}
	}

	if technician.UserID == "" {
		log.Info().Msg("Technician already seeded, skipping samples")
		return
	}

	for _, input := range seedSamples {
		sample, err := sampleService.Create(ctx, technician, input, nil)
		if err != nil {
			log.Fatal().Err(err).Str("patient", input.PatientInfo.PatientID).Msg("Failed to create sample")
		}
		log.Info().Str("sample", sample.SampleID).Str("site", sample.AnatomicalSite).Msg("Created sample")
	}

	log.Info().Str("password", seedPassword).Msg("Seeding completed")
}
