package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"photoshare/internal/availability"
	"photoshare/internal/config"
	"photoshare/internal/handler"
	"photoshare/internal/repository"
	"photoshare/internal/service"
	"photoshare/pkg/utils"
)

type Server struct {
	httpServer *http.Server
	connector  *repository.Connector
	cfg        *config.Config
	log        *zap.Logger
}

func New(cfg *config.Config, log *zap.Logger) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)

	flag := availability.New()
	flag.OnChange(func(from, to availability.State) {
		log.Info("Document store availability changed",
			zap.Stringer("from", from),
			zap.Stringer("to", to))
	})

	connector := repository.NewConnector(repository.MongoDialer(&cfg.Mongo), flag, repository.ConnectorOptions{
		MaxAttempts:       cfg.Mongo.MaxAttempts,
		RetryDelay:        cfg.Mongo.RetryDelay,
		ReconnectInterval: cfg.Mongo.ReconnectInterval,
		ConnectTimeout:    cfg.Mongo.ConnectTimeout,
	}, log)

	profileRepo := repository.NewMongoProfileRepository(connector, cfg.Mongo.Database, cfg.Mongo.OperationTimeout, log)
	fallback := service.NewFallbackProfile(service.DefaultProfile(cfg))

	images, err := newImageStore(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create image store: %w", err)
	}

	proc := utils.NewImageProcessor(cfg.App.ImageSize, cfg.App.JPEGQuality, log)
	profileService := service.NewProfileService(profileRepo, images, proc, flag, fallback, cfg, log)

	connector.OnConnect(func(ctx context.Context, _ repository.Session) error {
		if err := profileRepo.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("failed to ensure indexes: %w", err)
		}
		p, err := profileService.Sync(ctx)
		if err != nil {
			return fmt.Errorf("failed to sync profile: %w", err)
		}
		log.Info("Profile initialized", zap.String("id", p.ID))
		return nil
	})

	h := handler.NewHandler(profileService, images, cfg.App.MaxUploadSize, log)
	router := NewRouter(h, cfg.App.CORSOrigins, cfg.Storage.URLPrefix)

	server := &Server{
		httpServer: &http.Server{
			Addr:           cfg.Server.Host + ":" + cfg.Server.Port,
			Handler:        router,
			ReadTimeout:    cfg.Server.ReadTimeout,
			WriteTimeout:   cfg.Server.WriteTimeout,
			MaxHeaderBytes: 1 << 20, // 1 MB
		},
		connector: connector,
		cfg:       cfg,
		log:       log,
	}

	log.Info("Server created successfully",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
		zap.String("mongo_uri", repository.RedactURI(cfg.Mongo.URI)),
		zap.String("storage", cfg.Storage.Backend))

	return server, nil
}

func newImageStore(cfg *config.Config, log *zap.Logger) (repository.ImageStore, error) {
	switch cfg.Storage.Backend {
	case config.StorageS3:
		return repository.NewS3ImageStore(context.Background(), &cfg.S3, cfg.Storage.URLPrefix, log)
	default:
		return repository.NewLocalImageStore(cfg.Storage.UploadDir, cfg.Storage.URLPrefix, log)
	}
}

// Run connects to the document store in the background and serves HTTP until
// Shutdown. The listener does not wait for the store.
func (s *Server) Run() error {
	go s.connector.Connect(context.Background())

	s.log.Info("Server is running",
		zap.String("host", s.cfg.Server.Host),
		zap.String("port", s.cfg.Server.Port),
		zap.String("address", s.httpServer.Addr))

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down server")

	err := s.httpServer.Shutdown(ctx)
	if cerr := s.connector.Close(ctx); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}
