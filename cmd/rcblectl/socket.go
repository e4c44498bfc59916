package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v4"
)

const (
	defaultSocket = "/run/rcbled/rcbled.sock"
	envSocket     = "RCBLED_SOCKET"
)

// settings is the content of ~/.config/rcblectl/rcblectl.yml.
type settings struct {
	Socket string `yaml:"socket"`
}

func settingsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(home, ".config", "rcblectl", "rcblectl.yml"), nil
}

// locate returns the first rcbled socket found in $RCBLED_SOCKET, the settings file, then the default path.
func locate() (string, error) {
	cpath, err := settingsPath()
	if err != nil {
		return "", err
	}

	return locateFrom(os.Getenv(envSocket), cpath, defaultSocket)
}

func locateFrom(env, cpath, fallback string) (string, error) {
	candidates := []string{env}

	s, err := loadSettings(cpath)
	if err != nil {
		return "", err
	}
	candidates = append(candidates, s.Socket, fallback)

	var tried []string
	for _, path := range candidates {
		if path == "" {
			continue
		}
		if isSocket(path) {
			return path, nil
		}
		tried = append(tried, path)
	}

	return "", fmt.Errorf("rcbled socket not found (tried %s), is rcbled running? Use --socket to point to it", strings.Join(tried, ", "))
}

// remember saves the socket so next runs find it without --socket.
func remember(cpath, socket string) error {
	s, err := loadSettings(cpath)
	if err != nil {
		return err
	}
	if s.Socket == socket {
		return nil
	}

	if err = os.MkdirAll(filepath.Dir(cpath), 0o755); err != nil {
		return err
	}

	s.Socket = socket
	p, err := yaml.Marshal(s)
	if err != nil {
		return err
	}

	return os.WriteFile(cpath, p, 0o600)
}

func loadSettings(cpath string) (settings, error) {
	var s settings

	p, err := os.ReadFile(cpath)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, err
	}

	if err = yaml.Unmarshal(p, &s); err != nil {
		return s, fmt.Errorf("%s: %w", cpath, err)
	}
	return s, nil
}

func isSocket(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode()&os.ModeSocket != 0
}
