package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr string
	}
	Database struct {
		Path string
	}
	QBT struct {
		Host     string
		Port     int
		Username string
		Password string
	}
	Feeds struct {
		Sources      map[string]string
		LimitPerFeed int
		RefreshLimit int
		CacheTTL     time.Duration
		FetchTimeout time.Duration
	}
	Agent struct {
		ServerURL        string
		ClientID         string
		DownloadsDir     string
		PollInterval     time.Duration
		ErrorBackoff     time.Duration
		EmbeddedFallback bool
	}
}

// QBTBaseURL returns the qBittorrent Web UI base URL.
func (c Config) QBTBaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.QBT.Host, c.QBT.Port)
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	loadDotEnv()

	v := viper.New()
	v.SetEnvPrefix("BEYTV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:8000")
	v.SetDefault("database.path", "data/download_queue.db")
	v.SetDefault("qbt.host", "localhost")
	v.SetDefault("qbt.port", 8080)
	v.SetDefault("qbt.username", "admin")
	v.SetDefault("qbt.password", "adminadmin")
	v.SetDefault("feeds.limitperfeed", 8)
	v.SetDefault("feeds.refreshlimit", 10)
	v.SetDefault("feeds.cachettl", "5m")
	v.SetDefault("feeds.fetchtimeout", "10s")
	v.SetDefault("agent.serverurl", "http://localhost:8000")
	v.SetDefault("agent.clientid", "")
	v.SetDefault("agent.downloadsdir", defaultDownloadsDir())
	v.SetDefault("agent.pollinterval", "15s")
	v.SetDefault("agent.errorbackoff", "30s")
	v.SetDefault("agent.embeddedfallback", true)

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(cfg.Feeds.Sources) == 0 {
		cfg.Feeds.Sources = DefaultFeedSources()
	}

	return cfg, nil
}

// DefaultFeedSources is the built-in named feed set used when no
// sources are configured.
func DefaultFeedSources() map[string]string {
	return map[string]string{
		"movies_1080p": "https://yts.mx/rss/0/all/all/0",
		"tv_shows":     "https://eztv.re/ezrss.xml",
		"movies_4k":    "https://torrentgalaxy.to/rss?c5=1&c42=1&c46=1",
		"popular":      "https://torrentgalaxy.to/rss",
	}
}

func defaultDownloadsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "BeyTV"
	}
	return home + "/Downloads/BeyTV"
}

func loadDotEnv() {
	file, err := os.Open(".env")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		partsIndex := strings.Index(line, "=")
		if partsIndex <= 0 {
			continue
		}

		key := strings.TrimSpace(line[:partsIndex])
		value := strings.TrimSpace(line[partsIndex+1:])
		value = strings.Trim(value, `"'`)
		if key == "" {
			continue
		}

		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
}
