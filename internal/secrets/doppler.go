// Package secrets looks up sensitive configuration through the Doppler CLI.
package secrets

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const lookupTimeout = 5 * time.Second

// runner executes the doppler CLI and returns its stdout
type runner func(ctx context.Context, args ...string) ([]byte, error)

// DopplerClient resolves secrets for one Doppler project/config pair.
// Values injected by `doppler run` win over CLI lookups, and CLI results are cached.
type DopplerClient struct {
	Project string
	Config  string

	lookPath func(string) (string, error)
	run      runner

	mu          sync.Mutex
	initialized bool
	cache       map[string]string
}

// NewDopplerClient creates a new Doppler client
func NewDopplerClient(project, config string) *DopplerClient {
	return &DopplerClient{
		Project:  project,
		Config:   config,
		lookPath: exec.LookPath,
		run: func(ctx context.Context, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, "doppler", args...).Output()
		},
		cache: make(map[string]string),
	}
}

// Initialize checks that the Doppler CLI is installed
func (d *DopplerClient) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initLocked()
}

func (d *DopplerClient) initLocked() error {
	if d.initialized {
		return nil
	}
	if _, err := d.lookPath("doppler"); err != nil {
		return fmt.Errorf("doppler CLI not found: %w", err)
	}
	d.initialized = true
	return nil
}

// GetSecret returns the value of key from the environment or the Doppler CLI
func (d *DopplerClient) GetSecret(key string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.initLocked(); err != nil {
		return "", err
	}
	if value, ok := d.cache[key]; ok {
		return value, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	output, err := d.run(ctx, "secrets", "get", key,
		"--project", d.Project,
		"--config", d.Config,
		"--plain")
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", key, err)
	}

	value := strings.TrimSpace(string(output))
	d.cache[key] = value
	return value, nil
}

// GetSecretWithFallback returns fallback when the secret is missing or empty
func (d *DopplerClient) GetSecretWithFallback(key, fallback string) string {
	value, err := d.GetSecret(key)
	if err != nil || value == "" {
		return fallback
	}
	return value
}
