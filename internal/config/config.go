package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode      Mode
	HTTPAddr  string
	PublicURL string

	DBDriver string
	DBDSN    string

	BlobBasePath string
	ArchiveActas bool

	EnableLocalAuth bool
	AuthHMACSecret  string

	AdminUser         string
	AdminPassHash     string // bcrypt
	EvaluatorUser     string
	EvaluatorPassHash string // bcrypt; evaluator login disabled when empty

	CORSOriginsOnline  []string
	CORSOriginsOffline []string

	LogLevel  string
	LogFormat string // json|console

	Acta ActaConfig
}

// ActaConfig holds the institutional text printed on every acta.
type ActaConfig struct {
	Site         string
	Role         string
	Institution  string
	Title        string
	DirectorName string
	DirectorRole string
	DirectorUnit string
	SubjectRole  string
}

// Load reads an optional .env file (or the given files) and then the environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}
	return FromEnv(), nil
}

func FromEnv() Config {
	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	return Config{
		Mode:               mode,
		HTTPAddr:           envOr("HTTP_ADDR", ":8080"),
		PublicURL:          os.Getenv("PUBLIC_URL"),
		DBDriver:           envOr("DB_DRIVER", "sqlite"),
		DBDSN:              envOr("DB_DSN", ""),
		BlobBasePath:       envOr("BLOB_BASE_PATH", "./data"),
		ArchiveActas:       envBool("ARCHIVE_ACTAS", true),
		EnableLocalAuth:    envBool("ENABLE_LOCAL_AUTH", true),
		AuthHMACSecret:     envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),
		AdminUser:          envOr("ADMIN_USER", "admin"),
		AdminPassHash:      envOr("ADMIN_PASS_HASH", "$2y$12$pyZAiWaTfVtM7UElIRStvOC3gNbnp70nmQU4eYopLGBfCJr1DOvji"),
		EvaluatorUser:      envOr("EVALUATOR_USER", "evaluador"),
		EvaluatorPassHash:  os.Getenv("EVALUATOR_PASS_HASH"),
		CORSOriginsOnline:  csvOr("CORS_ORIGINS_ONLINE", "https://mgd.mindengage.ai"),
		CORSOriginsOffline: csvOr("CORS_ORIGINS_OFFLINE", "http://localhost:3000,http://localhost:8080"),
		LogLevel:           envOr("LOG_LEVEL", "info"),
		LogFormat:          envOr("LOG_FORMAT", "json"),
		Acta: ActaConfig{
			Site:         envOr("ACTA_SITE", "ARICA"),
			Role:         envOr("ACTA_ROLE", "COORD"),
			Institution:  envOr("ACTA_INSTITUTION", "INSTITUTO PROFESIONAL INACAP — SEDE ARICA"),
			Title:        envOr("ACTA_TITLE", "Evaluación de Desempeño Coordinador"),
			DirectorName: envOr("ACTA_DIRECTOR_NAME", "Cristian Moscoso Muñoz"),
			DirectorRole: envOr("ACTA_DIRECTOR_ROLE", "Director de Carrera"),
			DirectorUnit: envOr("ACTA_DIRECTOR_UNIT", "INACAP Sede Arica"),
			SubjectRole:  envOr("ACTA_SUBJECT_ROLE", "Coordinador(a) de Carrera"),
		},
	}
}

// CORSOrigins returns the allowed origins for the configured mode.
func (c Config) CORSOrigins() []string {
	if c.Mode == ModeOnline {
		return c.CORSOriginsOnline
	}
	return c.CORSOriginsOffline
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}
func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
