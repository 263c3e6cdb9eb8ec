package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Ednia school catalog
	EdniaBaseURL string

	// ResRobot public transport
	ResRobotBaseURL string
	ResRobotAPIKey  string

	// SFTP drop-off (optional, only used with -sftp)
	SFTPHost                  string
	SFTPPort                  int
	SFTPUser                  string
	SFTPPass                  string
	SFTPDir                   string
	SFTPInsecureIgnoreHostKey bool
}

// Load reads configuration from the environment, after merging in a
// .env file when one exists next to the binary. Env vars win over .env.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		EdniaBaseURL: getenv("EDNIA_BASE_URL", "https://api.ednia.se/elysia/highSchool"),

		ResRobotBaseURL: getenv("RESROBOT_BASE_URL", "https://api.resrobot.se/v2.1"),
		ResRobotAPIKey:  os.Getenv("RESROBOT_API_KEY"),

		SFTPHost:                  os.Getenv("SFTP_HOST"),
		SFTPPort:                  getenvInt("SFTP_PORT", 22),
		SFTPUser:                  os.Getenv("SFTP_USER"),
		SFTPPass:                  os.Getenv("SFTP_PASS"),
		SFTPDir:                   getenv("SFTP_DIR", "/"),
		SFTPInsecureIgnoreHostKey: getenvBool("SFTP_INSECURE_IGNORE_HOST_KEY", false),
	}
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvBool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
