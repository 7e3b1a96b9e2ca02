package cmd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/pflag"

	"github.com/Driving-Capstone/DrivingCoach-BE/backend"
	"github.com/Driving-Capstone/DrivingCoach-BE/backend/mock"
	"github.com/Driving-Capstone/DrivingCoach-BE/backend/psql"
	"github.com/Driving-Capstone/DrivingCoach-BE/objstore/filestore"
	"github.com/Driving-Capstone/DrivingCoach-BE/objstore/s3store"
	"github.com/Driving-Capstone/DrivingCoach-BE/proto"
	"github.com/Driving-Capstone/DrivingCoach-BE/proto/logging"
	"github.com/Driving-Capstone/DrivingCoach-BE/proto/security"
)

var Version = "dev"

var config = pflag.String("config", "", "path to a YAML config file (default: flags and built-in defaults)")

// getBlobStore opens the configured blob driver. The returned handler is
// non-nil when the relay itself serves the stored blobs.
func getBlobStore(ctx context.Context) (proto.BlobStore, http.Handler, error) {
	cfg := backend.Config.Blob
	switch cfg.Driver {
	case backend.BlobFile:
		store, err := filestore.Open(cfg.File.Root, cfg.File.BaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("blob store error: %s", err)
		}
		return store, store, nil
	case backend.BlobS3:
		store, err := s3store.New(ctx, s3store.Options{
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("blob store error: %s", err)
		}
		return store, nil, nil
	case backend.BlobMemory:
		logging.Logger(ctx).Warn().Msg("blobs are kept in memory and lost on exit")
		return mock.NewBlobStore(cfg.File.BaseURL), nil, nil
	default:
		return nil, nil, fmt.Errorf("blob store error: unknown driver %q", cfg.Driver)
	}
}

func getRecordStore(ctx context.Context) (proto.RecordStore, error) {
	if backend.Config.DB.DSN == "" {
		logging.Logger(ctx).Warn().Msg("no database configured, records are kept in memory")
		return mock.NewRecordStore(), nil
	}
	store, err := psql.Open(ctx, backend.Config.DB.DSN)
	if err != nil {
		return nil, err
	}
	pending, err := psql.Pending(store.DB)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("migration check: %s", err)
	}
	if len(pending) > 0 {
		store.Close()
		return nil, fmt.Errorf("%d pending migrations, run relayctl migrate", len(pending))
	}
	return store, nil
}

// getValidator returns nil when no secret is configured; every connection
// is then anonymous.
func getValidator(ctx context.Context) (*security.JWT, error) {
	cfg := backend.Config.Auth
	if cfg.Secret == "" {
		logging.Logger(ctx).Warn().Msg("no auth secret configured, all connections are anonymous")
		return nil, nil
	}
	validator, err := security.NewJWT(cfg.Secret, cfg.Issuer, cfg.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("auth error: %s", err)
	}
	return validator, nil
}
