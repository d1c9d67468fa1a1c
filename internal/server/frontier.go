package server

import (
	"go.uber.org/zap"

	"github.com/JakeFAU/websearch/internal/api"
	"github.com/JakeFAU/websearch/internal/frontier"
)

func (a *App) buildFrontier() error {
	cfg := a.cfg.Frontier
	f, err := frontier.New(frontier.Config{
		Path:          cfg.Path,
		StopwordsPath: cfg.StopwordsPath,
		MaxSize:       cfg.MaxSize,
		PollInterval:  cfg.PollInterval,
	}, a.logger.Named("frontier"))
	if err != nil {
		return err
	}
	a.logger.Info("frontier opened",
		zap.String("path", cfg.Path),
		zap.String("stopwords_path", cfg.StopwordsPath),
		zap.Int("max_size", cfg.MaxSize),
	)
	a.httpServer(cfg.Port, api.NewFrontierServer(f, a.apiOptions("api")).Handler())
	return nil
}
