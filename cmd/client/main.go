package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/vibesync/client/internal/app"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
}

var (
	serverURL = configVar[string]{
		envKey:       "VIBESYNC_SERVER_URL",
		flagKey:      "server-url",
		defaultValue: "ws://localhost:8000/ws",
	}
	room = configVar[string]{
		envKey:       "VIBESYNC_ROOM",
		flagKey:      "room",
		defaultValue: "",
	}
	credential = configVar[string]{
		envKey:       "VIBESYNC_TOKEN",
		flagKey:      "token",
		defaultValue: "",
	}
	logLevel = configVar[string]{
		envKey:       "VIBESYNC_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
	}
	storageDir = configVar[string]{
		envKey:       "VIBESYNC_STORAGE_DIR",
		flagKey:      "storage-dir",
		defaultValue: defaultStorageDir(),
	}
	callbackAddr = configVar[string]{
		envKey:       "VIBESYNC_CALLBACK_ADDR",
		flagKey:      "callback-addr",
		defaultValue: "127.0.0.1:8888",
	}
	pollSeconds = configVar[int]{
		envKey:       "VIBESYNC_POLL_SECONDS",
		flagKey:      "poll-seconds",
		defaultValue: 5,
	}
)

func defaultStorageDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".vibesync"
	}
	return filepath.Join(dir, "vibesync")
}

func loadAppConfig() *app.AppConfig {
	pflag.String(serverURL.flagKey, serverURL.defaultValue, "Room server websocket URL")
	pflag.String(room.flagKey, room.defaultValue, "Room to join on startup (deep link)")
	pflag.String(credential.flagKey, credential.defaultValue, "Bearer token")
	pflag.String(logLevel.flagKey, logLevel.defaultValue, "Logging level")
	pflag.String(storageDir.flagKey, storageDir.defaultValue, "Directory for persisted state")
	pflag.String(callbackAddr.flagKey, callbackAddr.defaultValue, "Login callback listen address")
	pflag.Int(pollSeconds.flagKey, pollSeconds.defaultValue, "Device state poll interval in seconds")
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	viper.BindEnv(serverURL.flagKey, serverURL.envKey)
	viper.BindEnv(room.flagKey, room.envKey)
	viper.BindEnv(credential.flagKey, credential.envKey)
	viper.BindEnv(logLevel.flagKey, logLevel.envKey)
	viper.BindEnv(storageDir.flagKey, storageDir.envKey)
	viper.BindEnv(callbackAddr.flagKey, callbackAddr.envKey)
	viper.BindEnv(pollSeconds.flagKey, pollSeconds.envKey)

	viper.SetDefault(serverURL.flagKey, serverURL.defaultValue)
	viper.SetDefault(room.flagKey, room.defaultValue)
	viper.SetDefault(credential.flagKey, credential.defaultValue)
	viper.SetDefault(logLevel.flagKey, logLevel.defaultValue)
	viper.SetDefault(storageDir.flagKey, storageDir.defaultValue)
	viper.SetDefault(callbackAddr.flagKey, callbackAddr.defaultValue)
	viper.SetDefault(pollSeconds.flagKey, pollSeconds.defaultValue)

	config := &app.AppConfig{
		ServerURL:    viper.GetString(serverURL.flagKey),
		Room:         viper.GetString(room.flagKey),
		Credential:   viper.GetString(credential.flagKey),
		LogLevel:     viper.GetString(logLevel.flagKey),
		StorageDir:   viper.GetString(storageDir.flagKey),
		CallbackAddr: viper.GetString(callbackAddr.flagKey),
		PollSeconds:  viper.GetInt(pollSeconds.flagKey),
	}

	return config
}

func main() {
	ctx := context.Background()

	appConfig := loadAppConfig()

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting client with config: %s\n", jsonConfig)

	if err := app.Run(ctx, appConfig); err != nil {
		log.Fatal(err)
	}
}
