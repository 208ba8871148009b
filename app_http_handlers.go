package main

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
)

// registerRoutes wires the API onto router
func (app *App) registerRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.POST("/verifications", app.createVerificationHandler)
		api.GET("/verifications", app.listVerificationsHandler)
		api.GET("/verifications/:id", app.getVerificationHandler)
		api.PUT("/verifications/:id/rename", app.renameVerificationHandler)
		api.DELETE("/verifications/:id", app.deleteVerificationHandler)
		api.POST("/verifications/:id/upload", app.uploadFilesHandler)
		api.GET("/verifications/:id/reference", app.downloadReferenceHandler)
		api.GET("/verifications/:id/pdf", app.downloadPDFHandler)
		api.GET("/verifications/:id/image", app.downloadImageHandler)

		api.GET("/jobs/:job_id", getJobStatusHandler)
		api.GET("/jobs", getAllJobsHandler)
		api.POST("/jobs/:job_id/cancel", cancelJobHandler)

		api.GET("/prompts", app.getPromptsHandler)
		api.POST("/prompts", app.updatePromptsHandler)
		api.POST("/prompts/reset", app.resetPromptHandler)
	}
}

// loadVerification resolves the :id parameter, writing the error response
// itself when it fails
func (app *App) loadVerification(c *gin.Context) (*Verification, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid verification ID"})
		return nil, false
	}
	v, err := GetVerification(app.Database, uint(id))
	if errors.Is(err, ErrVerificationNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Verification not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve verification"})
		log.Errorf("Failed to retrieve verification %d: %v", id, err)
		return nil, false
	}
	return v, true
}

// createVerificationHandler handles the POST /api/verifications endpoint
func (app *App) createVerificationHandler(c *gin.Context) {
	name := strings.TrimSpace(c.Query("verification_name"))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "verification_name is required"})
		return
	}

	v, err := CreateVerification(app.Database, name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create verification"})
		log.Errorf("Failed to create verification: %v", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": v.ID, "verification_name": v.Name})
}

// listVerificationsHandler handles the GET /api/verifications endpoint
func (app *App) listVerificationsHandler(c *gin.Context) {
	verifications, err := ListVerifications(app.Database)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve verifications"})
		log.Errorf("Failed to retrieve verifications: %v", err)
		return
	}

	list := make([]gin.H, 0, len(verifications))
	for _, v := range verifications {
		list = append(list, gin.H{
			"id":                v.ID,
			"verification_name": v.Name,
			"status":            v.Status,
			"created_at":        v.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, list)
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// getVerificationHandler handles the GET /api/verifications/:id endpoint
func (app *App) getVerificationHandler(c *gin.Context) {
	v, ok := app.loadVerification(c)
	if !ok {
		return
	}

	response := gin.H{
		"verification_id":   v.ID,
		"verification_name": v.Name,
		"status":            v.Status,
		"created_at":        v.CreatedAt,
		"reference_info": gin.H{
			"exists":   fileExists(v.ReferencePath),
			"filename": v.ReferenceFilename,
			"hash":     v.ReferenceHash,
		},
		"pdf_info": gin.H{
			"exists":    v.PDFAvailable && fileExists(app.pdfPath(v.ID)),
			"available": v.PDFAvailable,
		},
		"image_info": gin.H{
			"exists":    fileExists(v.ImagePath),
			"filename":  v.ImageFilename,
			"hash":      v.ImageHash,
			"ocr_scope": v.OCRScope,
		},
		"differences": nil,
	}

	report, err := storedReport(v)
	if err != nil {
		response["differences"] = gin.H{"error": err.Error()}
	} else if report != nil {
		response["differences"] = report
	}
	c.JSON(http.StatusOK, response)
}

// renameVerificationHandler handles the PUT /api/verifications/:id/rename endpoint
func (app *App) renameVerificationHandler(c *gin.Context) {
	v, ok := app.loadVerification(c)
	if !ok {
		return
	}

	var req struct {
		Name string `json:"verification_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "verification_name is required"})
		return
	}

	if err := RenameVerification(app.Database, v.ID, strings.TrimSpace(req.Name)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to rename verification"})
		log.Errorf("Failed to rename verification %d: %v", v.ID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":         "Verification renamed successfully",
		"verification_id": v.ID,
		"new_name":        strings.TrimSpace(req.Name),
	})
}

// deleteVerificationHandler handles the DELETE /api/verifications/:id endpoint
func (app *App) deleteVerificationHandler(c *gin.Context) {
	v, ok := app.loadVerification(c)
	if !ok {
		return
	}

	for _, path := range []string{v.ReferencePath, v.ImagePath, app.pdfPath(v.ID)} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warnf("Failed to remove %s: %v", path, err)
		}
	}

	if err := DeleteVerification(app.Database, v.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete verification"})
		log.Errorf("Failed to delete verification %d: %v", v.ID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Verification deleted"})
}

func readFormFile(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// storeUpload writes content below the upload folder as <dir>/<id><ext>
func (app *App) storeUpload(dir string, id uint, filename string, content []byte) (string, error) {
	path := filepath.Join(app.UploadPath, dir, strconv.FormatUint(uint64(id), 10)+strings.ToLower(filepath.Ext(filename)))
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// uploadFilesHandler handles the POST /api/verifications/:id/upload endpoint.
// Files are stored and a job is queued to process them.
func (app *App) uploadFilesHandler(c *gin.Context) {
	v, ok := app.loadVerification(c)
	if !ok {
		return
	}

	referenceFile, _ := c.FormFile("reference_file")
	imageFile, _ := c.FormFile("image_file")
	if (referenceFile == nil && v.ReferencePath == "") || (imageFile == nil && v.ImagePath == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required files"})
		return
	}

	scope, err := normalizeScope(c.DefaultPostForm("ocr_scope", fullScope))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inputsChanged := scope != v.OCRScope
	if referenceFile != nil {
		content, err := readFormFile(referenceFile)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read reference file"})
			return
		}
		if hash := fileHash(content); hash != v.ReferenceHash {
			mtype := mimetype.Detect(content)
			if !mtype.Is(mimePDF) && !mtype.Is(mimeDOCX) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid reference document type"})
				return
			}
			path, err := app.storeUpload("reference", v.ID, referenceFile.Filename, content)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store reference file"})
				log.Errorf("Failed to store reference file: %v", err)
				return
			}
			v.ReferencePath = path
			v.ReferenceFilename = referenceFile.Filename
			v.ReferenceHash = hash
			inputsChanged = true
		}
	}

	if imageFile != nil {
		content, err := readFormFile(imageFile)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read image file"})
			return
		}
		if hash := fileHash(content); hash != v.ImageHash {
			if !isImage(content) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid image type"})
				return
			}
			path, err := app.storeUpload("images", v.ID, imageFile.Filename, content)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store image file"})
				log.Errorf("Failed to store image file: %v", err)
				return
			}
			v.ImagePath = path
			v.ImageFilename = imageFile.Filename
			v.ImageHash = hash
			inputsChanged = true
		}
	}
	v.OCRScope = scope

	if err := UpdateVerificationInputs(app.Database, v, inputsChanged); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save verification"})
		log.Errorf("Failed to save verification %d: %v", v.ID, err)
		return
	}

	job := newJob(v.ID)
	jobStore.addJob(job)
	jobQueue <- job

	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID})
}

func sendStoredFile(c *gin.Context, path, downloadName, missing string) {
	if path == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": missing})
		return
	}
	if !fileExists(path) {
		c.JSON(http.StatusNotFound, gin.H{"error": "File no longer exists on server"})
		return
	}
	c.FileAttachment(path, downloadName)
}

func (app *App) downloadReferenceHandler(c *gin.Context) {
	v, ok := app.loadVerification(c)
	if !ok {
		return
	}
	sendStoredFile(c, v.ReferencePath, v.ReferenceFilename, "Reference file not found")
}

func (app *App) downloadPDFHandler(c *gin.Context) {
	v, ok := app.loadVerification(c)
	if !ok {
		return
	}
	path := ""
	if v.PDFAvailable {
		path = app.pdfPath(v.ID)
	}
	sendStoredFile(c, path, v.Name+".pdf", "PDF file not found")
}

func (app *App) downloadImageHandler(c *gin.Context) {
	v, ok := app.loadVerification(c)
	if !ok {
		return
	}
	sendStoredFile(c, v.ImagePath, v.ImageFilename, "Image file not found")
}

func jobResponse(job Job) gin.H {
	response := gin.H{
		"job_id":          job.ID,
		"verification_id": job.VerificationID,
		"status":          job.Status,
		"created_at":      job.CreatedAt,
		"updated_at":      job.UpdatedAt,
	}

	if job.Status == jobCompleted {
		response["result"] = job.Outcome
	} else if job.Status == jobFailed {
		response["error"] = job.Error
	}
	return response
}

func getJobStatusHandler(c *gin.Context) {
	job, exists := jobStore.getJob(c.Param("job_id"))
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	c.JSON(http.StatusOK, jobResponse(job))
}

func getAllJobsHandler(c *gin.Context) {
	jobs := jobStore.GetAllJobs()

	jobList := make([]gin.H, 0, len(jobs))
	for _, job := range jobs {
		jobList = append(jobList, jobResponse(job))
	}
	c.JSON(http.StatusOK, jobList)
}

func cancelJobHandler(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, exists := jobStore.getJob(jobID); !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	if !cancelJob(jobID) {
		c.JSON(http.StatusConflict, gin.H{"error": "Job is not running"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Job cancellation requested"})
}

// validPromptName rejects anything that is not a plain file name
func validPromptName(name string) bool {
	return name != "" && name == filepath.Base(name) && !strings.Contains(name, "..")
}

// getPromptsHandler handles the GET /api/prompts endpoint
func (app *App) getPromptsHandler(c *gin.Context) {
	entries, err := os.ReadDir(app.PromptsDir)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read prompts directory"})
		log.Errorf("Failed to read prompts directory: %v", err)
		return
	}

	prompts := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(app.PromptsDir, entry.Name()))
		if err != nil {
			log.Warnf("Failed to read prompt %s: %v", entry.Name(), err)
			continue
		}
		prompts[entry.Name()] = string(content)
	}
	c.JSON(http.StatusOK, prompts)
}

// updatePromptsHandler handles the POST /api/prompts endpoint
func (app *App) updatePromptsHandler(c *gin.Context) {
	var req struct {
		Filename string `json:"filename"`
		Content  string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}
	if !validPromptName(req.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid prompt filename"})
		return
	}
	if _, err := template.New(req.Filename).Funcs(sprig.TxtFuncMap()).Parse(req.Content); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid template: %v", err)})
		return
	}

	if err := os.WriteFile(filepath.Join(app.PromptsDir, req.Filename), []byte(req.Content), 0o644); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to write prompt"})
		log.Errorf("Failed to write prompt %s: %v", req.Filename, err)
		return
	}
	c.Status(http.StatusOK)
}

// resetPromptHandler restores a prompt to its built-in default
func (app *App) resetPromptHandler(c *gin.Context) {
	var req struct {
		Filename string `json:"filename"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || !validPromptName(req.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid prompt filename"})
		return
	}
	content, ok := defaultAsset("default_prompts", req.Filename)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No default for this prompt"})
		return
	}
	if err := os.WriteFile(filepath.Join(app.PromptsDir, req.Filename), content, 0o644); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to write prompt"})
		log.Errorf("Failed to write prompt %s: %v", req.Filename, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"filename": req.Filename, "content": string(content)})
}
