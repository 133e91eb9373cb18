// src/handlers/import_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/username/finledger/backend/src/config"
	"github.com/username/finledger/backend/src/logger"
	"github.com/username/finledger/backend/src/security/validation"
	"github.com/username/finledger/backend/src/services"
)

type ImportHandler struct {
	importService services.ImportService
}

func NewImportHandler(importService services.ImportService) *ImportHandler {
	return &ImportHandler{
		importService: importService,
	}
}

func (h *ImportHandler) HandleListParsers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.importService.ListParsers())
}

// HandleImport accepts a multipart upload with a "file" part and a "parser"
// field naming the parser to run it through.
func (h *ImportHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	ctxLogger.Info("Received file import request")

	if err := r.ParseMultipartForm(config.Cfg.MaxUploadSizeBytes); err != nil {
		ctxLogger.Warn("Error parsing multipart form", "error", err)
		sendJSONError(w, fmt.Sprintf("Error parsing form: %v. Max size: %d bytes.", err, config.Cfg.MaxUploadSizeBytes), http.StatusBadRequest)
		return
	}

	parserName := r.FormValue("parser")
	if parserName == "" {
		sendJSONError(w, "Missing 'parser' form field", http.StatusBadRequest)
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		ctxLogger.Warn("Error retrieving file from form", "error", err)
		sendJSONError(w, "Error retrieving file: 'file' field missing or invalid.", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if fileHeader.Size > config.Cfg.MaxUploadSizeBytes {
		ctxLogger.Warn("Uploaded file too large", "fileSize", fileHeader.Size, "limit", config.Cfg.MaxUploadSizeBytes)
		sendJSONError(w, fmt.Sprintf("File too large, max %d MB", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	clientContentType := fileHeader.Header.Get("Content-Type")
	if err := validation.ValidateClientContentType(clientContentType); err != nil {
		ctxLogger.Warn("Invalid client-declared file type", "contentType", clientContentType, "error", err)
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		ctxLogger.Error("Error reading uploaded file", "filename", fileHeader.Filename, "error", err)
		sendJSONError(w, "Error reading uploaded file", http.StatusInternalServerError)
		return
	}

	detectedContentType, err := validation.ValidateFileContent(content)
	if err != nil {
		ctxLogger.Warn("Server-side file content validation failed", "filename", fileHeader.Filename, "error", err)
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	filename := validation.StripUnprintable(fileHeader.Filename)
	ctxLogger.Info("Processing import", "parser", parserName, "filename", filename,
		"size", fileHeader.Size, "clientType", clientContentType, "detectedType", detectedContentType)

	result, err := h.importService.ImportFile(parserName, filename, content)
	if err != nil {
		h.sendImportError(w, ctxLogger, filename, err)
		return
	}

	ctxLogger.Info("Import finished", "filename", filename,
		"created", result.Created, "duplicates", result.Duplicates, "upgraded", result.Upgraded)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// HandleSharedImport accepts the shared-expense ledger export as a raw JSON
// body, avoiding the multipart dance for API clients that sync directly.
func (h *ImportHandler) HandleSharedImport(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	ctxLogger.Info("Received shared ledger import request")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, config.Cfg.MaxUploadSizeBytes))
	if err != nil {
		ctxLogger.Warn("Error reading shared ledger body", "error", err)
		sendJSONError(w, fmt.Sprintf("Error reading request body. Max size: %d bytes.", config.Cfg.MaxUploadSizeBytes), http.StatusBadRequest)
		return
	}
	if len(body) == 0 {
		sendJSONError(w, "Request body is empty", http.StatusBadRequest)
		return
	}

	if _, err := validation.ValidateFileContent(body); err != nil {
		ctxLogger.Warn("Shared ledger body validation failed", "error", err)
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = "shared_ledger.json"
	} else {
		filename = validation.StripUnprintable(filename)
	}

	result, err := h.importService.ImportFile("sharedledger", filename, body)
	if err != nil {
		h.sendImportError(w, ctxLogger, filename, err)
		return
	}

	ctxLogger.Info("Shared ledger import finished", "filename", filename,
		"created", result.Created, "updated", result.Updated, "persons", result.PersonsImported)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (h *ImportHandler) sendImportError(w http.ResponseWriter, ctxLogger *slog.Logger, filename string, err error) {
	switch {
	case errors.Is(err, services.ErrParserNotFound):
		sendJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrParsingFailed):
		ctxLogger.Warn("Import parsing failed", "filename", filename, "error", err)
		sendJSONError(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		ctxLogger.Error("Import failed", "filename", filename, "error", err)
		sendJSONError(w, "Import failed", http.StatusInternalServerError)
	}
}
