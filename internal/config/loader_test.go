package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func writeServerConfig(t *testing.T, path, addr string) {
	t.Helper()
	content := "version = 1\n\n[server]\naddr = \"" + addr + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestWatchReloadsAndNotifies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeServerConfig(t, path, "127.0.0.1:9000")

	l := NewLoader(path)
	if _, err := l.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := l.Watch(); err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer l.Close()

	got := make(chan *Config, 1)
	l.OnChange(func(c *Config) {
		select {
		case got <- c:
		default:
		}
	})

	writeServerConfig(t, path, "127.0.0.1:9001")

	select {
	case c := <-got:
		if c.Server.Addr != "127.0.0.1:9001" {
			t.Errorf("reloaded addr = %q", c.Server.Addr)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback never fired")
	}

	if l.Config().Server.Addr != "127.0.0.1:9001" {
		t.Errorf("loader config not updated: %q", l.Config().Server.Addr)
	}
}

func TestOnChangeConcurrentWithReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeServerConfig(t, path, "127.0.0.1:9000")

	l := NewLoader(path)
	if _, err := l.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	// Registration must be safe while reloads iterate the callback list.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.OnChange(func(*Config) {})
			}
		}()
	}
	for i := 0; i < 100; i++ {
		l.reload()
	}
	wg.Wait()
}
