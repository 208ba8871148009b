package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelproof/internal/record"
)

// baseEnv is a configuration that passes validation
var baseEnv = map[string]string{
	"LLM_PROVIDER":           "openai",
	"LLM_MODEL":              "gpt-4o",
	"LLM_API_KEY":            "sk-test",
	"OCR_PROVIDER":           "azure",
	"AZURE_ENDPOINT":         "https://example.cognitiveservices.azure.com/",
	"AZURE_SUBSCRIPTION_KEY": "key",
	"TABLE_DETECTOR_URL":     "http://localhost:9000/detect",
	"DB_DRIVER":              "sqlite",
}

func TestValidateEnvVars(t *testing.T) {
	testCases := []struct {
		name     string
		override map[string]string
		wantErr  string
	}{
		{name: "valid configuration"},
		{name: "missing provider", override: map[string]string{"LLM_PROVIDER": ""}, wantErr: "LLM_PROVIDER"},
		{name: "unknown provider", override: map[string]string{"LLM_PROVIDER": "dashscope"}, wantErr: "must be one of"},
		{name: "missing model", override: map[string]string{"LLM_MODEL": ""}, wantErr: "LLM_MODEL"},
		{name: "googleai needs a key", override: map[string]string{"LLM_PROVIDER": "googleai"}, wantErr: "GOOGLEAI_API_KEY"},
		{name: "bad number", override: map[string]string{"LLM_REQUESTS_PER_MINUTE": "fast"}, wantErr: "LLM_REQUESTS_PER_MINUTE must be a number"},
		{name: "bad bool", override: map[string]string{"LLM_JSON_MODE": "sometimes"}, wantErr: "LLM_JSON_MODE must be true or false"},
		{name: "google docai incomplete", override: map[string]string{"OCR_PROVIDER": "google_docai", "GOOGLE_PROJECT_ID": "p"}, wantErr: "GOOGLE_PROCESSOR_ID"},
		{name: "tesseract needs nothing", override: map[string]string{"OCR_PROVIDER": "tesseract", "AZURE_ENDPOINT": ""}},
		{name: "unknown ocr provider", override: map[string]string{"OCR_PROVIDER": "mistral_ocr"}, wantErr: "unsupported OCR_PROVIDER"},
		{name: "missing detector", override: map[string]string{"TABLE_DETECTOR_URL": ""}, wantErr: "TABLE_DETECTOR_URL"},
		{name: "postgres without dsn", override: map[string]string{"DB_DRIVER": "postgres"}, wantErr: "DB_DSN"},
		{name: "no workers", override: map[string]string{"VERIFICATION_WORKERS": "0"}, wantErr: "VERIFICATION_WORKERS"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range baseEnv {
				t.Setenv(k, v)
			}
			for k, v := range tc.override {
				t.Setenv(k, v)
			}

			loadEnv()
			err := validateEnvVars()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateEnvVarsReportsEverything(t *testing.T) {
	for _, k := range []string{"LLM_PROVIDER", "LLM_MODEL", "TABLE_DETECTOR_URL"} {
		t.Setenv(k, "")
	}
	t.Setenv("OCR_PROVIDER", "tesseract")
	t.Setenv("TOKEN_LIMIT", "-5")

	loadEnv()
	err := validateEnvVars()
	require.Error(t, err)
	for _, want := range []string{"LLM_PROVIDER", "LLM_MODEL", "TABLE_DETECTOR_URL", "TOKEN_LIMIT"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoadEnvDefaults(t *testing.T) {
	for _, k := range []string{"LLM_LANGUAGE", "OCR_LANGUAGE", "SERVER_PORT", "VERIFICATION_WORKERS", "DB_DRIVER"} {
		t.Setenv(k, "")
	}
	t.Setenv("TESSERACT_LANGUAGES", "chi_tra+ eng +")
	t.Setenv("OCR_PROVIDER", "TESSERACT")

	loadEnv()
	assert.Equal(t, "Traditional Chinese", llmLanguage)
	assert.Equal(t, "zh-Hant", ocrLanguage)
	assert.Equal(t, "8080", serverPort)
	assert.Equal(t, 1, verificationWorkers)
	assert.Equal(t, "sqlite", dbDriver)
	assert.Equal(t, "tesseract", ocrProvider)
	assert.Equal(t, []string{"chi_tra", "eng"}, tesseractLanguages)
}

func TestWriteDefaultAssets(t *testing.T) {
	dir := t.TempDir()
	edited := filepath.Join(dir, "reference_prompt_template.txt")
	require.NoError(t, os.WriteFile(edited, []byte("my prompt"), 0o644))

	require.NoError(t, writeDefaultAssets("default_prompts", dir))

	content, err := os.ReadFile(edited)
	require.NoError(t, err)
	assert.Equal(t, "my prompt", string(content))
	assert.FileExists(t, filepath.Join(dir, "proofreading_prompt_template.txt"))
	assert.FileExists(t, filepath.Join(dir, "proofreading_prompt_template(nutrition).txt"))
}

func TestDefaultTemplatesParse(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeDefaultAssets("default_jsons", dir))

	label, err := record.LoadTemplate(filepath.Join(dir, labelTemplateFile))
	require.NoError(t, err)
	reference, err := record.LoadTemplate(filepath.Join(dir, referenceTemplateFile))
	require.NoError(t, err)

	assert.Contains(t, templateText(label), `"title_valid"`)
	assert.NotContains(t, templateText(reference), `"title_valid"`)
	assert.Contains(t, templateText(reference), "營養標示")
}
