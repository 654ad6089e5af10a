package cmd

import (
	"context"
	"errors"
	"testing"

	coreconfig "github.com/m3rciful/tonbot/core/config"
	coretelegram "github.com/m3rciful/tonbot/core/telegram"
)

type testConfig struct{ cfg *coreconfig.Config }

func (c testConfig) CoreConfig() *coreconfig.Config { return c.cfg }

type testApp struct {
	background bool
	closed     bool
}

func (a *testApp) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return coretelegram.RunOptions{}, nil
}

func (a *testApp) Background(ctx context.Context) error {
	a.background = true
	<-ctx.Done()
	return nil
}

func (a *testApp) Close() error {
	a.closed = true
	return nil
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("TONBOT_CONFIG", "from-env.yaml")
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{"explicit", Options{ConfigPath: "flag.yaml", ConfigEnvVar: "TONBOT_CONFIG"}, "flag.yaml"},
		{"env", Options{ConfigEnvVar: "TONBOT_CONFIG", DefaultConfigPath: "default.yaml"}, "from-env.yaml"},
		{"default", Options{ConfigEnvVar: "TONBOT_UNSET", DefaultConfigPath: "default.yaml"}, "default.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveConfigPath(tt.opts)
			if err != nil || got != tt.want {
				t.Fatalf("ResolveConfigPath() = %q, %v; want %q", got, err, tt.want)
			}
		})
	}
	if _, err := ResolveConfigPath(Options{ConfigEnvVar: "TONBOT_UNSET"}); err == nil {
		t.Fatalf("ResolveConfigPath() expected error without any source")
	}
}

func TestRunStopsBackgroundWithTelegram(t *testing.T) {
	app := &testApp{}
	boom := errors.New("telegram down")
	err := Run(Options{
		ConfigPath: "config.yaml",
		LoadConfig: func(string) (ConfigCarrier, error) {
			return testConfig{cfg: &coreconfig.Config{}}, nil
		},
		Bootstrap: func(context.Context, ConfigCarrier) (TelegramApp, error) {
			return app, nil
		},
		ShutdownLogger: func() error { return nil },
		RunTelegram: func(context.Context, coretelegram.RunOptions) error {
			return boom
		},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want %v", err, boom)
	}
	if !app.closed {
		t.Errorf("app not closed")
	}
}

func TestRunRequiresHooks(t *testing.T) {
	if err := Run(Options{}); err == nil {
		t.Fatalf("Run() expected error without LoadConfig")
	}
}

func TestHookChaining(t *testing.T) {
	var calls []string
	note := func(name string) func(context.Context) {
		return func(context.Context) { calls = append(calls, name) }
	}
	hook := func(ctx context.Context, _ coretelegram.Runtime) error {
		calls = append(calls, "hook")
		return nil
	}

	ctx := context.Background()
	if err := after(hook, note("after"))(ctx, coretelegram.Runtime{}); err != nil {
		t.Fatalf("after() error: %v", err)
	}
	if err := before(hook, note("before"))(ctx, coretelegram.Runtime{}); err != nil {
		t.Fatalf("before() error: %v", err)
	}
	want := []string{"hook", "after", "before", "hook"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}

	calls = nil
	failing := func(context.Context, coretelegram.Runtime) error { return errors.New("boom") }
	if err := after(failing, note("after"))(ctx, coretelegram.Runtime{}); err == nil {
		t.Fatalf("after() expected hook error")
	}
	if len(calls) != 0 {
		t.Fatalf("note ran after failed hook: %v", calls)
	}
	if err := before(nil, note("before"))(ctx, coretelegram.Runtime{}); err != nil || len(calls) != 1 {
		t.Fatalf("before(nil) = %v, calls %v", err, calls)
	}
}
