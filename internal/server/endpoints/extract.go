package endpoints

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/ocrion/internal/api"
	"github.com/jackzampolin/ocrion/internal/extract"
	"github.com/jackzampolin/ocrion/internal/pipeline"
	"github.com/jackzampolin/ocrion/internal/region"
	"github.com/jackzampolin/ocrion/internal/svcctx"
)

// StatusClientClosedRequest is returned when the caller went away mid-extraction.
const StatusClientClosedRequest = 499

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// ExtractionResponse is the result of POST /extract.
type ExtractionResponse struct {
	Success  bool              `json:"success"`
	Data     region.Record     `json:"data" swaggertype:"object"`
	Metadata pipeline.Metadata `json:"metadata"`
}

// ExtractEndpoint handles POST /extract.
type ExtractEndpoint struct {
	// MaxUploadSize bounds the uploaded file (0 means no endpoint-level bound).
	MaxUploadSize int64
}

var _ api.Endpoint = (*ExtractEndpoint)(nil)

func (e *ExtractEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/extract", e.handler
}

func (e *ExtractEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Extract fields from a document
//	@Description	Upload a single-page image or PDF and a field schema; returns one value per schema field
//	@Tags			extract
//	@Accept			mpfd
//	@Produce		json
//	@Param			file	formData	file	true	"Document (JPEG, PNG, TIFF, BMP or single-page PDF)"
//	@Param			schema	formData	string	true	"JSON object mapping field names to descriptions"
//	@Success		200		{object}	ExtractionResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Failure		502		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/extract [post]
func (e *ExtractEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := svcctx.LoggerFrom(ctx)

	p := svcctx.PipelineFrom(ctx)
	if p == nil {
		writeError(w, http.StatusServiceUnavailable, "extraction pipeline not initialized")
		return
	}

	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.New().String()
	}
	w.Header().Set(RequestIDHeader, requestID)

	if e.MaxUploadSize > 0 {
		// Room for the schema field and multipart framing.
		r.Body = http.MaxBytesReader(w, r.Body, e.MaxUploadSize+1<<20)
	}
	const maxMemory = 32 << 20
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("file too large: limit is %d bytes", e.MaxUploadSize))
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	rawSchema := r.FormValue("schema")
	if rawSchema == "" {
		writeError(w, http.StatusBadRequest, "schema is required")
		return
	}
	schema, err := region.ParseSchema([]byte(rawSchema))
	if err != nil {
		writeErrorDetail(w, http.StatusBadRequest, "invalid schema", "", err.Error())
		return
	}

	file, fh, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	limit := e.MaxUploadSize
	if limit <= 0 {
		limit = 1 << 62
	}
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read file: %v", err))
		return
	}

	logger.Info("extraction requested", "request_id", requestID, "file", fh.Filename, "size", len(data), "fields", schema.Len())

	res, err := p.Run(ctx, pipeline.Request{
		ID:     requestID,
		Name:   fh.Filename,
		Data:   data,
		Schema: schema,
	})
	if err != nil {
		status, kind := statusFor(ctx, err)
		if status >= 500 {
			logger.Error("extraction failed", "request_id", requestID, "status", status, "error", err)
		} else {
			logger.Warn("extraction rejected", "request_id", requestID, "status", status, "error", err)
		}
		writeErrorDetail(w, status, errorMessage(status), kind, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ExtractionResponse{
		Success:  true,
		Data:     res.Data,
		Metadata: res.Metadata,
	})
}

// statusFor maps a pipeline error to an HTTP status and failure kind.
func statusFor(ctx context.Context, err error) (int, string) {
	if pipeline.IsClientError(err) {
		return http.StatusBadRequest, ""
	}
	switch kind := extract.KindOf(err); kind {
	case extract.KindTransport:
		return http.StatusBadGateway, string(kind)
	case extract.KindUnparseableOutput, extract.KindSchemaShape:
		return http.StatusUnprocessableEntity, string(kind)
	case extract.KindCanceled:
		if ctx.Err() != nil {
			return StatusClientClosedRequest, string(kind)
		}
		return http.StatusServiceUnavailable, string(kind)
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return StatusClientClosedRequest, string(extract.KindCanceled)
	}
	return http.StatusInternalServerError, ""
}

func errorMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid request"
	case http.StatusBadGateway:
		return "extraction backend unavailable"
	case http.StatusUnprocessableEntity:
		return "extraction backend returned unusable output"
	case StatusClientClosedRequest, http.StatusServiceUnavailable:
		return "extraction canceled"
	default:
		return "extraction failed"
	}
}

func (e *ExtractEndpoint) Command(getServerURL func() string) *cobra.Command {
	var schemaFile string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Extract schema fields from a document on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			schemaData, err := os.ReadFile(schemaFile)
			if err != nil {
				return fmt.Errorf("failed to read schema: %w", err)
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			client := api.NewClient(getServerURL())
			var resp ExtractionResponse
			err = client.PostMultipart(ctx, "/extract",
				map[string]string{"schema": string(schemaData)},
				[]api.FilePart{{Field: "file", FileName: filepath.Base(args[0]), Content: f}},
				&resp,
			)
			if err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVarP(&schemaFile, "schema", "s", "", "JSON schema file mapping field names to descriptions")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Overall request timeout")
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}
