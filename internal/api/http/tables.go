package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/arkilian/metatables/internal/catalog"
	metaerrors "github.com/arkilian/metatables/internal/errors"
	"github.com/arkilian/metatables/internal/table"
)

// CreateTableRequest creates a table.
type CreateTableRequest struct {
	Identifier    string            `json:"identifier"`
	Schema        json.RawMessage   `json:"schema"`
	PartitionSpec json.RawMessage   `json:"partition_spec,omitempty"`
	Properties    map[string]string `json:"properties,omitempty"`
}

// TableResponse describes a table.
type TableResponse struct {
	Identifier        string          `json:"identifier"`
	Location          string          `json:"location"`
	Schema            json.RawMessage `json:"schema"`
	CurrentSnapshotID *int64          `json:"current_snapshot_id,omitempty"`
	Snapshots         int             `json:"snapshots"`
	RequestID         string          `json:"request_id"`
}

// AppendRequest appends records to a table. Records are keyed by top-level
// column name.
type AppendRequest struct {
	Rows []map[string]interface{} `json:"rows"`
}

// AppendResponse describes the snapshot an append committed.
type AppendResponse struct {
	SnapshotID int64  `json:"snapshot_id"`
	DataFiles  int    `json:"data_files"`
	RowCount   int64  `json:"row_count"`
	RequestID  string `json:"request_id"`
}

// TableHandler serves table management requests.
type TableHandler struct {
	catalog catalog.Catalog
	logger  log.Logger
}

// NewTableHandler creates a new table handler.
func NewTableHandler(cat catalog.Catalog, logger log.Logger) *TableHandler {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &TableHandler{catalog: cat, logger: logger}
}

// ServeCreate handles POST /v1/tables.
func (h *TableHandler) ServeCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, invalidBody(err))
		return
	}
	ident, err := catalog.ParseIdentifier(req.Identifier)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(req.Schema) == 0 {
		writeError(w, r, metaerrors.NewValidationError(metaerrors.CodeInvalidSchema, "schema is required"))
		return
	}
	schema, err := table.SchemaFromJSON(string(req.Schema))
	if err != nil {
		writeError(w, r, metaerrors.NewValidationError(metaerrors.CodeInvalidSchema, err.Error()))
		return
	}
	spec := table.Unpartitioned()
	if len(req.PartitionSpec) > 0 {
		spec, err = table.SpecFromJSON(string(req.PartitionSpec))
		if err != nil {
			writeError(w, r, metaerrors.NewValidationError(metaerrors.CodeInvalidTransform, err.Error()))
			return
		}
	}

	tbl, err := h.catalog.CreateTable(r.Context(), ident, schema, spec, req.Properties)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeTable(w, r, http.StatusCreated, tbl)
}

// ServeGet handles GET /v1/tables/{ident}.
func (h *TableHandler) ServeGet(w http.ResponseWriter, r *http.Request) {
	tbl, err := h.load(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeTable(w, r, http.StatusOK, tbl)
}

// ServeList handles GET /v1/namespaces/{namespace}/tables.
func (h *TableHandler) ServeList(w http.ResponseWriter, r *http.Request) {
	idents, err := h.catalog.ListTables(r.Context(), r.PathValue("namespace"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	names := make([]string, len(idents))
	for i, ident := range idents {
		names[i] = ident.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": names, "request_id": GetRequestID(r.Context())})
}

// ServeAppend handles POST /v1/tables/{ident}/append.
func (h *TableHandler) ServeAppend(w http.ResponseWriter, r *http.Request) {
	var req AppendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, invalidBody(err))
		return
	}
	if len(req.Rows) == 0 {
		writeError(w, r, metaerrors.NewValidationError(metaerrors.CodeInvalidValue, "rows must not be empty"))
		return
	}

	tbl, err := h.load(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	files, err := tbl.NewDataWriter().Write(r.Context(), req.Rows)
	if err != nil {
		writeError(w, r, metaerrors.NewValidationError(metaerrors.CodeInvalidValue, err.Error()))
		return
	}
	snapshot, err := tbl.NewAppend().AppendFiles(files...).Commit(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	var rowCount int64
	for _, f := range files {
		rowCount += f.RecordCount
	}
	level.Info(h.logger).Log("msg", "appended rows", "table", tbl.Name(), "snapshot", snapshot.SnapshotID,
		"files", len(files), "rows", rowCount)

	writeJSON(w, http.StatusOK, AppendResponse{
		SnapshotID: snapshot.SnapshotID,
		DataFiles:  len(files),
		RowCount:   rowCount,
		RequestID:  GetRequestID(r.Context()),
	})
}

func (h *TableHandler) load(r *http.Request) (*table.Table, error) {
	ident, err := catalog.ParseIdentifier(r.PathValue("ident"))
	if err != nil {
		return nil, err
	}
	return h.catalog.LoadTable(r.Context(), ident)
}

func (h *TableHandler) writeTable(w http.ResponseWriter, r *http.Request, status int, tbl *table.Table) {
	schema, err := table.SchemaToJSON(tbl.Schema())
	if err != nil {
		writeError(w, r, metaerrors.NewInternalError("failed to encode schema", err))
		return
	}
	meta := tbl.Metadata()
	writeJSON(w, status, TableResponse{
		Identifier:        tbl.Name(),
		Location:          meta.Location,
		Schema:            json.RawMessage(schema),
		CurrentSnapshotID: meta.CurrentSnapshotID,
		Snapshots:         len(meta.Snapshots),
		RequestID:         GetRequestID(r.Context()),
	})
}

// MetadataTableHandler serves metadata-table schemas.
type MetadataTableHandler struct {
	catalog catalog.Catalog
}

// NewMetadataTableHandler creates a new metadata table handler.
func NewMetadataTableHandler(cat catalog.Catalog) *MetadataTableHandler {
	return &MetadataTableHandler{catalog: cat}
}

// ServeSchema handles GET /v1/tables/{ident}/{metatable}/schema.
func (h *MetadataTableHandler) ServeSchema(w http.ResponseWriter, r *http.Request) {
	mt, err := h.catalog.LoadMetadataTable(r.Context(), r.PathValue("ident")+"."+r.PathValue("metatable"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	schema, err := mt.Schema()
	if err != nil {
		writeError(w, r, err)
		return
	}
	encoded, err := table.SchemaToJSON(schema)
	if err != nil {
		writeError(w, r, metaerrors.NewInternalError("failed to encode schema", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"table":      mt.Name(),
		"schema":     json.RawMessage(encoded),
		"columns":    schema.LeafNames(),
		"request_id": GetRequestID(r.Context()),
	})
}

func invalidBody(err error) error {
	return metaerrors.NewValidationError(metaerrors.CodeInvalidValue, fmt.Sprintf("invalid request body: %v", err))
}
