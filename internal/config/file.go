package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the optional APP_CONFIG_FILE layout. Pointer fields
// distinguish "absent" from zero values.
type fileConfig struct {
	Analysis struct {
		SampleStride      *int     `yaml:"sample_stride"`
		PressureThreshold *float64 `yaml:"pressure_threshold"`
		ModerateThreshold *float64 `yaml:"moderate_threshold"`
		HighThreshold     *float64 `yaml:"high_threshold"`
		GridRows          *int     `yaml:"grid_rows"`
		GridCols          *int     `yaml:"grid_cols"`
		CanvasWidth       *int     `yaml:"canvas_width"`
		CanvasHeight      *int     `yaml:"canvas_height"`
		MaxUploadBytes    *int64   `yaml:"max_upload_bytes"`
		MaxPixels         *int64   `yaml:"max_pixels"`
	} `yaml:"analysis"`
	Chat struct {
		SystemPrompt *string `yaml:"system_prompt"`
		Provider     *string `yaml:"provider"`
		OpenAIModel  *string `yaml:"openai_model"`
		Anthropic    *string `yaml:"anthropic_model"`
	} `yaml:"chat"`
	CORS struct {
		AllowAnyOrigin *bool    `yaml:"allow_any_origin"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read APP_CONFIG_FILE: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse APP_CONFIG_FILE %s: %w", path, err)
	}

	a := &cfg.Analysis
	setIf(&a.SampleStride, fc.Analysis.SampleStride)
	setIf(&a.PressureThreshold, fc.Analysis.PressureThreshold)
	setIf(&a.ModerateThreshold, fc.Analysis.ModerateThreshold)
	setIf(&a.HighThreshold, fc.Analysis.HighThreshold)
	setIf(&a.GridRows, fc.Analysis.GridRows)
	setIf(&a.GridCols, fc.Analysis.GridCols)
	setIf(&a.CanvasWidth, fc.Analysis.CanvasWidth)
	setIf(&a.CanvasHeight, fc.Analysis.CanvasHeight)
	setIf(&a.MaxUploadBytes, fc.Analysis.MaxUploadBytes)
	setIf(&a.MaxPixels, fc.Analysis.MaxPixels)

	setIf(&cfg.SystemPrompt, fc.Chat.SystemPrompt)
	setIf(&cfg.CompletionProvider, fc.Chat.Provider)
	setIf(&cfg.OpenAIModel, fc.Chat.OpenAIModel)
	setIf(&cfg.AnthropicModel, fc.Chat.Anthropic)

	setIf(&cfg.AllowAnyOrigin, fc.CORS.AllowAnyOrigin)
	if len(fc.CORS.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = append([]string(nil), fc.CORS.AllowedOrigins...)
	}
	return nil
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// LoadDotEnv loads every existing file among paths into the process
// environment. Variables already set are left untouched; missing files are
// not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat %s: %w", p, err)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load dotenv: %w", err)
	}
	return nil
}
