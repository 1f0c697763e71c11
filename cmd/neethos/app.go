package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/codeneeth/neethos-chat/config"
	"github.com/codeneeth/neethos-chat/internal/domain/entity"
	"github.com/codeneeth/neethos-chat/internal/domain/repository"
	"github.com/codeneeth/neethos-chat/internal/infrastructure/exporter"
	"github.com/codeneeth/neethos-chat/internal/infrastructure/gemini"
	"github.com/codeneeth/neethos-chat/internal/infrastructure/logger"
	"github.com/codeneeth/neethos-chat/internal/infrastructure/storage"
	"github.com/codeneeth/neethos-chat/internal/theme"
	"github.com/codeneeth/neethos-chat/internal/usecase"
)

var errAIDisabled = errors.New("gemini is not configured for this command")

// offlineAI backs commands that only read or write history.
type offlineAI struct{}

func (offlineAI) GenerateResponse(context.Context, string, []entity.Message) (string, error) {
	return "", errAIDisabled
}

func (offlineAI) Close() error { return nil }

type appOptions struct {
	withAI  bool
	logFile string
}

// app holds the wired dependencies shared by every command.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	repo   repository.ChatRepository
	ai     repository.AIRepository
	chat   usecase.ChatUseCase
	themes *theme.Registry
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}

	var log *zap.Logger
	if opts.logFile != "" {
		log, err = logger.NewFile(cfg.LogLevel, opts.logFile)
	} else {
		log, err = logger.New(cfg.LogLevel, cfg.LogFormat)
	}
	if err != nil {
		return nil, err
	}

	themes := theme.NewRegistry(cfg.Theme)
	if cfg.ThemeFile != "" {
		if err := themes.LoadFile(cfg.ThemeFile); err != nil {
			return nil, err
		}
	}

	repo, err := storage.Open(storage.Options{
		Driver:     cfg.StorageDriver,
		SQLitePath: cfg.ChatDBPath,
		BadgerPath: cfg.BadgerPath,
		StorageKey: cfg.StorageKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	var ai repository.AIRepository = offlineAI{}
	if opts.withAI {
		if err := cfg.RequireAI(); err != nil {
			_ = repo.Close()
			return nil, err
		}
		ai, err = gemini.New(ctx, cfg.GeminiSDK, gemini.Options{
			APIKey:            cfg.GeminiAPIKey,
			Model:             cfg.GeminiModel,
			Temperature:       float32(cfg.Temperature),
			MaxOutputTokens:   int32(cfg.MaxOutputTokens),
			SystemInstruction: cfg.SystemInstruction,
			MaxConcurrent:     cfg.MaxConcurrentRequests,
			MinInterval:       cfg.MinRequestInterval,
			BaseURL:           cfg.GeminiBaseURL,
		}, log)
		if err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("failed to create gemini client: %w", err)
		}
	}

	greeting := cfg.Greeting
	if greeting == "" {
		greeting = entity.GreetingText
	}
	chat := usecase.NewChatUseCase(ai, repo, exporter.NewExcelExporter(), usecase.Options{
		ContextMessages: cfg.ContextMessages,
		RequestTimeout:  cfg.RequestTimeout,
		Greeting:        greeting,
	}, log)

	log.Info("application configured",
		zap.String("storage", cfg.StorageDriver),
		zap.String("model", cfg.GeminiModel),
		zap.Bool("ai", opts.withAI),
		zap.Int("context_messages", cfg.ContextMessages))

	return &app{cfg: cfg, log: log, repo: repo, ai: ai, chat: chat, themes: themes}, nil
}

func (a *app) Close() {
	if err := a.ai.Close(); err != nil {
		a.log.Warn("failed to close ai client", zap.Error(err))
	}
	if err := a.repo.Close(); err != nil {
		a.log.Warn("failed to close storage", zap.Error(err))
	}
	_ = a.log.Sync()
}
