package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"labelproof/internal/compare"
	"labelproof/internal/constants"
	"labelproof/internal/extract"
	"labelproof/internal/pipeline"
	"labelproof/internal/record"
	"labelproof/internal/segment"
	"labelproof/ocr"
	"labelproof/oracle"
)

// Global Variables and Constants
var (

	// Logger
	log = logrus.New()

	// Environment Variables, populated by loadEnv
	llmProvider          string
	llmModel             string
	llmAPIKey            string
	llmBaseURL           string
	llmAPIVersion        string
	googleAIAPIKey       string
	llmRequestsPerMinute float64
	llmMaxRetries        int
	llmJSONMode          bool
	tokenLimit           int
	llmLanguage          string

	ocrProvider          string
	azureEndpoint        string
	azureSubscriptionKey string
	ocrLanguage          string
	googleProjectID      string
	googleLocation       string
	googleProcessorID    string
	tesseractLanguages   []string

	tableDetectorURL   string
	tableDetectorToken string
	converterURL       string

	promptsFolderPath string
	jsonsFolderPath   string
	filesUploadPath   string

	dbDriver            string
	dbDSN               string
	serverHost          string
	serverPort          string
	logLevel            string
	verificationWorkers int

	// envErrors collects malformed numeric or boolean variables
	envErrors []error
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "compare" {
		os.Exit(runCompare(os.Args[2:], os.Stdout))
	}

	// Load .env if present, then read the environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warnf("Failed to load .env file: %v", err)
	}
	loadEnv()

	// Initialize logrus logger
	initLogger()

	// Validate Environment Variables
	if err := validateEnvVars(); err != nil {
		log.Fatalf("Invalid configuration:\n%v", err)
	}

	ctx := context.Background()

	// Write default prompts and templates
	if err := writeDefaultAssets("default_prompts", promptsFolderPath); err != nil {
		log.Fatalf("Failed to write default prompts: %v", err)
	}
	if err := writeDefaultAssets("default_jsons", jsonsFolderPath); err != nil {
		log.Fatalf("Failed to write default templates: %v", err)
	}

	app, closer, err := buildApp(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	// Create a Gin router with default middleware (logger and recovery)
	router := gin.Default()
	app.registerRoutes(router)

	// Start verification worker pool
	startWorkerPool(app, verificationWorkers)
	StartBackgroundTasks(ctx, app)

	addr := serverHost + ":" + serverPort
	log.Infof("Server started on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}

// buildApp wires the pipelines from the environment. The returned closer,
// when non-nil, releases the OCR client.
func buildApp(ctx context.Context) (*App, io.Closer, error) {
	vocab := constants.TraditionalChinese

	labelTemplate, err := record.LoadTemplate(filepath.Join(jsonsFolderPath, labelTemplateFile))
	if err != nil {
		return nil, nil, err
	}
	referenceTemplate, err := record.LoadTemplate(filepath.Join(jsonsFolderPath, referenceTemplateFile))
	if err != nil {
		return nil, nil, err
	}

	model, err := oracle.NewModel(ctx, oracle.Config{
		Provider:       llmProvider,
		Model:          llmModel,
		APIKey:         llmAPIKey,
		BaseURL:        llmBaseURL,
		APIVersion:     llmAPIVersion,
		GoogleAIAPIKey: googleAIAPIKey,
		RateLimit: oracle.RateLimitConfig{
			RequestsPerMinute: llmRequestsPerMinute,
			MaxRetries:        llmMaxRetries,
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	extractor := extract.New(
		oracle.NewLLMOracle(model, oracle.WithJSONMode(llmJSONMode)),
		extract.WithTokenLimit(llmModel, tokenLimit),
	)

	provider, err := ocr.NewProvider(ocr.Config{
		Provider:           ocrProvider,
		Language:           ocrLanguage,
		AzureEndpoint:      azureEndpoint,
		AzureAPIKey:        azureSubscriptionKey,
		GoogleProjectID:    googleProjectID,
		GoogleLocation:     googleLocation,
		GoogleProcessorID:  googleProcessorID,
		TesseractLanguages: tesseractLanguages,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create OCR provider: %w", err)
	}
	closer, _ := provider.(io.Closer)

	detector := segment.NewHTTPDetector(tableDetectorURL, newDetectorHTTPClient(tableDetectorToken, 2*time.Minute))
	prompts := extract.NewPromptStore(promptsFolderPath)

	orchestrator := pipeline.NewOrchestrator(extractor, prompts, pipeline.DefaultPrompts,
		extract.PromptData{Language: llmLanguage, Template: templateText(labelTemplate)}, vocab)
	label := pipeline.NewLabelPipeline(segment.New(detector), provider, orchestrator, labelTemplate, vocab.SectionMarkers)
	reference := pipeline.NewReferencePipeline(extractor, prompts, pipeline.DefaultPrompts.Reference,
		extract.PromptData{Language: llmLanguage, Template: templateText(referenceTemplate)}, referenceTemplate, vocab.NumericKeys)

	var converter Converter
	if converterURL != "" {
		converter = NewHTTPConverter(converterURL)
	} else {
		converter = &LibreOfficeConverter{}
	}

	database, err := InitializeDB(dbDriver, dbDSN)
	if err != nil {
		return nil, closer, err
	}

	return &App{
		Database:   database,
		Label:      label,
		Reference:  reference,
		Converter:  converter,
		Comparator: compare.New(vocab.NumericKeys),
		UploadPath: filesUploadPath,
		PromptsDir: promptsFolderPath,
	}, closer, nil
}

func templateText(t *record.Template) string {
	data, err := t.Root().MarshalJSON()
	if err != nil {
		return ""
	}
	return string(data)
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		envErrors = append(envErrors, fmt.Errorf("%s must be an integer: %q", key, v))
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		envErrors = append(envErrors, fmt.Errorf("%s must be a number: %q", key, v))
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		envErrors = append(envErrors, fmt.Errorf("%s must be true or false: %q", key, v))
		return fallback
	}
	return b
}

// loadEnv reads the configuration from the environment
func loadEnv() {
	envErrors = nil

	llmProvider = strings.ToLower(getEnv("LLM_PROVIDER", ""))
	llmModel = getEnv("LLM_MODEL", "")
	llmAPIKey = getEnv("LLM_API_KEY", "")
	llmBaseURL = getEnv("LLM_BASE_URL", "")
	llmAPIVersion = getEnv("LLM_API_VERSION", "")
	googleAIAPIKey = getEnv("GOOGLEAI_API_KEY", "")
	llmRequestsPerMinute = getEnvFloat("LLM_REQUESTS_PER_MINUTE", 0)
	llmMaxRetries = getEnvInt("LLM_MAX_RETRIES", 0)
	llmJSONMode = getEnvBool("LLM_JSON_MODE", false)
	tokenLimit = getEnvInt("TOKEN_LIMIT", 0)
	llmLanguage = getEnv("LLM_LANGUAGE", "Traditional Chinese")

	ocrProvider = strings.ToLower(getEnv("OCR_PROVIDER", "azure"))
	azureEndpoint = getEnv("AZURE_ENDPOINT", "")
	azureSubscriptionKey = getEnv("AZURE_SUBSCRIPTION_KEY", "")
	ocrLanguage = getEnv("OCR_LANGUAGE", "zh-Hant")
	googleProjectID = getEnv("GOOGLE_PROJECT_ID", "")
	googleLocation = getEnv("GOOGLE_LOCATION", "")
	googleProcessorID = getEnv("GOOGLE_PROCESSOR_ID", "")
	tesseractLanguages = nil
	if langs := getEnv("TESSERACT_LANGUAGES", ""); langs != "" {
		for _, l := range strings.Split(langs, "+") {
			if l = strings.TrimSpace(l); l != "" {
				tesseractLanguages = append(tesseractLanguages, l)
			}
		}
	}

	tableDetectorURL = getEnv("TABLE_DETECTOR_URL", "")
	tableDetectorToken = getEnv("TABLE_DETECTOR_TOKEN", "")
	converterURL = getEnv("CONVERTER_URL", "")

	promptsFolderPath = getEnv("PROMPTS_FOLDER_PATH", "prompts")
	jsonsFolderPath = getEnv("JSONS_FOLDER_PATH", "jsons")
	filesUploadPath = getEnv("FILES_UPLOAD_PATH", "uploads")

	dbDriver = strings.ToLower(getEnv("DB_DRIVER", "sqlite"))
	dbDSN = getEnv("DB_DSN", "")
	serverHost = getEnv("SERVER_HOST", "")
	serverPort = getEnv("SERVER_PORT", "8080")
	logLevel = strings.ToLower(getEnv("LOG_LEVEL", ""))
	verificationWorkers = getEnvInt("VERIFICATION_WORKERS", 1)
}

func initLogger() {
	level := logrus.InfoLevel
	switch logLevel {
	case "debug":
		level = logrus.DebugLevel
	case "info":
		level = logrus.InfoLevel
	case "warn":
		level = logrus.WarnLevel
	case "error":
		level = logrus.ErrorLevel
	default:
		if logLevel != "" {
			log.Fatalf("Invalid log level: '%s'.", logLevel)
		}
	}

	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetLevel(level)

	// Align the package loggers
	ocr.SetLogLevel(level)
	oracle.SetLogLevel(level)
	extract.SetLogLevel(level)
	segment.SetLogLevel(level)
	pipeline.SetLogLevel(level)
}

// validateEnvVars checks that all necessary environment variables are set
// and reports every problem at once
func validateEnvVars() error {
	errs := append([]error(nil), envErrors...)

	switch llmProvider {
	case "":
		errs = append(errs, errors.New("please set the LLM_PROVIDER environment variable"))
	case "openai", "azure", "ollama", "googleai":
	default:
		errs = append(errs, fmt.Errorf("LLM_PROVIDER must be one of openai, azure, ollama, googleai, got %q", llmProvider))
	}
	if llmModel == "" {
		errs = append(errs, errors.New("please set the LLM_MODEL environment variable"))
	}
	if llmProvider == "openai" && llmAPIKey == "" && llmBaseURL == "" {
		errs = append(errs, errors.New("please set the LLM_API_KEY environment variable for the OpenAI provider"))
	}
	if llmProvider == "azure" && (llmAPIKey == "" || llmBaseURL == "") {
		errs = append(errs, errors.New("please set LLM_API_KEY and LLM_BASE_URL for the Azure provider"))
	}
	if llmProvider == "googleai" && googleAIAPIKey == "" {
		errs = append(errs, errors.New("please set the GOOGLEAI_API_KEY environment variable for the Google AI provider"))
	}

	switch ocrProvider {
	case "azure", "azure_docintel":
		if azureEndpoint == "" || azureSubscriptionKey == "" {
			errs = append(errs, errors.New("please set AZURE_ENDPOINT and AZURE_SUBSCRIPTION_KEY for Azure OCR"))
		}
	case "google_docai":
		if googleProjectID == "" || googleLocation == "" || googleProcessorID == "" {
			errs = append(errs, errors.New("please set GOOGLE_PROJECT_ID, GOOGLE_LOCATION and GOOGLE_PROCESSOR_ID for Google Document AI"))
		}
	case "tesseract":
	default:
		errs = append(errs, fmt.Errorf("unsupported OCR_PROVIDER %q", ocrProvider))
	}

	if tableDetectorURL == "" {
		errs = append(errs, errors.New("please set the TABLE_DETECTOR_URL environment variable"))
	}
	if dbDriver != "sqlite" && dbDriver != "postgres" {
		errs = append(errs, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", dbDriver))
	}
	if dbDriver == "postgres" && dbDSN == "" {
		errs = append(errs, errors.New("please set DB_DSN for the postgres driver"))
	}
	if verificationWorkers < 1 {
		errs = append(errs, errors.New("VERIFICATION_WORKERS must be at least 1"))
	}
	if tokenLimit < 0 {
		errs = append(errs, errors.New("TOKEN_LIMIT must not be negative"))
	}

	return errors.Join(errs...)
}
