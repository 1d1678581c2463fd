package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
}

// NewWizard creates a new configuration wizard
func NewWizard() *Wizard {
	return &Wizard{
		reader: bufio.NewReader(os.Stdin),
	}
}

// Run runs the interactive configuration wizard
func (w *Wizard) Run() (*Config, error) {
	fmt.Println("=== Mnemo Configuration Wizard ===")
	fmt.Println()

	cfg := DefaultConfig()
	validator := NewValidator()

	// Embedding provider
	fmt.Println("Embedding provider:")
	fmt.Println("  ollama - local Ollama server (default)")
	fmt.Println("  openai - OpenAI embeddings API")
	fmt.Print("Provider [ollama]: ")
	provider, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if provider == "" {
		provider = "ollama"
	}
	if provider != "ollama" && provider != "openai" {
		fmt.Printf("Warning: unknown provider %q, using default (ollama)\n", provider)
		provider = "ollama"
	}
	cfg.Embedding.Provider = provider

	if provider == "openai" {
		for {
			fmt.Print("OpenAI API Key: ")
			key, err := w.readLine()
			if err != nil {
				return nil, err
			}

			if err := validator.ValidateAPIKey(key, "openai"); err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}

			cfg.Embedding.APIKey = key
			break
		}
		cfg.Embedding.BaseURL = ""
		cfg.Embedding.Model = "text-embedding-3-small"
		cfg.Embedding.Dimension = 1536
	} else {
		fmt.Print("Ollama base URL [http://localhost:11434]: ")
		baseURL, err := w.readLine()
		if err != nil {
			return nil, err
		}
		if baseURL != "" {
			if err := validator.ValidateBaseURL(baseURL); err != nil {
				fmt.Printf("Warning: %v, using default\n", err)
			} else {
				cfg.Embedding.BaseURL = baseURL
			}
		}
	}

	// Embedding model
	fmt.Printf("Embedding model [%s]: ", cfg.Embedding.Model)
	model, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if model != "" {
		cfg.Embedding.Model = model

		fmt.Printf("Embedding dimension [%d]: ", cfg.Embedding.Dimension)
		dim, err := w.readLine()
		if err != nil {
			return nil, err
		}
		if dim != "" {
			n, convErr := strconv.Atoi(dim)
			if convErr != nil || validator.ValidateDimension(n) != nil {
				fmt.Printf("Warning: invalid dimension %q, keeping %d\n", dim, cfg.Embedding.Dimension)
			} else {
				cfg.Embedding.Dimension = n
			}
		}
	}

	fmt.Println()

	// Database
	fmt.Print("Database path (press Enter for default under ~/.mnemo): ")
	dbPath, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}

	fmt.Println()

	// Document drop directory
	fmt.Print("Watch a directory for dropped documents? (y/n) [n]: ")
	enable, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if strings.ToLower(enable) == "y" {
		for {
			fmt.Print("Directory to watch: ")
			dir, err := w.readLine()
			if err != nil {
				return nil, err
			}
			if dir == "" {
				fmt.Println("Error: directory is required when watching is enabled")
				continue
			}
			cfg.Ingest.WatchEnabled = true
			cfg.Ingest.WatchDir = dir
			break
		}
	}

	fmt.Println()

	// Log Level
	fmt.Println("Logging:")
	fmt.Print("Log level (debug/info/warn/error) [info]: ")
	level, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if level != "" {
		if err := validator.ValidateLogLevel(level); err != nil {
			fmt.Printf("Warning: %v, using default (info)\n", err)
		} else {
			cfg.Logging.Level = level
		}
	}

	fmt.Println()
	fmt.Println("Configuration complete!")

	return cfg, nil
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
