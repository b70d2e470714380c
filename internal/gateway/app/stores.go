package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	artifactcache "formkit/internal/cache/artifact"
	"formkit/internal/gateway/config"
	artifactrepo "formkit/internal/gateway/repository/artifact"
	"formkit/internal/gateway/repository/catalog"
)

const catalogConnectTimeout = 10 * time.Second

type gatewayStores struct {
	catalog  *catalog.CachedSource
	artifact artifactrepo.Store
	closers  []func() error
}

func initStores(cfg *config.Config) (*gatewayStores, error) {
	stores := &gatewayStores{}

	origin, err := initCatalog(cfg, stores)
	if err != nil {
		return nil, err
	}
	cached, err := catalog.NewCachedSource(origin, catalog.DefaultCacheEntries)
	if err != nil {
		stores.close()
		return nil, fmt.Errorf("failed to initialize catalog cache: %w", err)
	}
	stores.catalog = cached

	artifactStore, err := chooseArtifactStore(cfg, artifactrepo.NewMemoryStore(), "in-memory")
	if err != nil {
		stores.close()
		return nil, err
	}
	stores.artifact = artifactcache.NewCachedStore(artifactStore, artifactcache.DefaultCacheConfig())
	return stores, nil
}

func initCatalog(cfg *config.Config, stores *gatewayStores) (catalog.Source, error) {
	dsn := strings.TrimSpace(cfg.CatalogDSN)
	if dsn == "" {
		log.Printf("catalog: in-memory seed (%d entries)", len(catalog.DefaultEntries()))
		return catalog.NewMemorySource(catalog.DefaultEntries()...), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), catalogConnectTimeout)
	defer cancel()
	pg, err := catalog.NewPostgres(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog db: %w", err)
	}
	stores.closers = append(stores.closers, pg.Close)
	log.Printf("catalog: postgres")
	return pg, nil
}

func chooseArtifactStore(cfg *config.Config, fallback artifactrepo.Store, fallbackLabel string) (artifactrepo.Store, error) {
	if !cfg.Artifact.Enabled {
		if cfg.Artifact.Endpoint != "" {
			log.Printf("artifact store: using %s fallback (s3 config incomplete)", fallbackLabel)
		} else {
			log.Printf("artifact store: %s", fallbackLabel)
		}
		if fallback == nil {
			return nil, fmt.Errorf("artifact fallback store is nil")
		}
		return fallback, nil
	}
	s3Cfg := artifactrepo.S3Config{
		Endpoint:  cfg.Artifact.Endpoint,
		Region:    cfg.Artifact.Region,
		AccessKey: cfg.Artifact.AccessKey,
		SecretKey: cfg.Artifact.SecretKey,
		Bucket:    cfg.Artifact.Bucket,
		UseSSL:    cfg.Artifact.UseSSL,
	}
	s3Store, err := artifactrepo.NewS3Store(s3Cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize artifact s3 store: %w", err)
	}
	log.Printf("artifact store: s3 bucket=%s endpoint=%s", s3Cfg.Bucket, s3Cfg.Endpoint)
	return s3Store, nil
}

func (s *gatewayStores) close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			log.Printf("close store: %v", err)
		}
	}
	s.closers = nil
}
