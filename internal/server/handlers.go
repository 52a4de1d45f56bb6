package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"groupsync/internal/gs"
	"groupsync/internal/transfer"
)

const (
	maxJSONBody  = 8 << 20
	maxFieldSize = 4 << 10
)

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("pong"))
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, gs.VersionResponse{Version: s.version})
}

func (s *Server) handleRegisterClient(w http.ResponseWriter, r *http.Request) {
	var req gs.RegisterClientRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.ClientID == "" {
		req.ClientID = r.Header.Get(gs.HeaderClientID)
	}
	if req.HostName == "" {
		req.HostName = r.Header.Get(gs.HeaderClientHostname)
	}

	c, err := s.registry.RegisterClient(r.Context(), req.ClientID, req.HostName, req.MinPollIntervalMs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.registry.ListGroups(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req gs.GroupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	g, err := s.registry.CreateGroup(r.Context(), req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (s *Server) handleRenameGroup(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req gs.GroupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	g, err := s.registry.RenameGroup(r.Context(), id, req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleRegisterMapping(w http.ResponseWriter, r *http.Request) {
	var req gs.MappingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	caller := clientIDFrom(r.Context())
	if req.ClientID == "" {
		req.ClientID = caller
	}
	if req.ClientID != caller {
		s.writeError(w, r, fmt.Errorf("%w: client_id does not match %s", gs.ErrInvalidRequest, gs.HeaderClientID))
		return
	}

	m, err := s.registry.RegisterMapping(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleListMappings(w http.ResponseWriter, r *http.Request) {
	ms, err := s.registry.Mappings(r.Context(), clientIDFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ms)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	localPath := r.URL.Query().Get("local_path")
	if localPath == "" {
		s.writeError(w, r, fmt.Errorf("%w: local_path is required", gs.ErrInvalidRequest))
		return
	}

	g, err := s.registry.Resolve(r.Context(), clientIDFrom(r.Context()), localPath)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleDeleteMapping(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.registry.DeleteMapping(r.Context(), clientIDFrom(r.Context()), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAppendEvent(w http.ResponseWriter, r *http.Request) {
	var c gs.CandidateEvent
	if err := decodeJSON(w, r, &c); err != nil {
		s.writeError(w, r, err)
		return
	}
	c.ClientID = clientIDFrom(r.Context())
	c.Staged = false

	ev, err := s.events.Append(r.Context(), c)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) handleHistorySince(w http.ResponseWriter, r *http.Request) {
	groupID, err := queryInt64(r, "group_id", true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	since, err := queryInt64(r, "since", false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	events, err := s.events.HistorySince(r.Context(), groupID, since)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(events))
}

func (s *Server) handlePathHistory(w http.ResponseWriter, r *http.Request) {
	groupID, err := queryInt64(r, "group_id", true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	events, err := s.events.PathHistory(r.Context(), groupID, r.URL.Query().Get("path"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(events))
}

// handleUpload reads the metadata fields of a multipart upload and streams
// the file part straight into the transfer manager.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", gs.ErrInvalidRequest, err))
		return
	}

	req := gs.UploadRequest{ClientID: clientIDFrom(r.Context()), Size: -1}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			s.writeError(w, r, fmt.Errorf("%w: upload has no %q part", gs.ErrInvalidRequest, gs.UploadFieldFile))
			return
		}
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: reading multipart body: %w", gs.ErrTransferIncomplete, err))
			return
		}

		if part.FormName() == gs.UploadFieldFile {
			if req.GroupID <= 0 || req.Path == "" {
				part.Close()
				s.writeError(w, r, fmt.Errorf("%w: group_id and path must precede the file part", gs.ErrInvalidRequest))
				return
			}
			ev, err := s.transfers.Upload(r.Context(), req, part)
			part.Close()
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, ev)
			return
		}

		err = readUploadField(&req, part)
		part.Close()
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}
}

func readUploadField(req *gs.UploadRequest, part *multipart.Part) error {
	raw, err := io.ReadAll(io.LimitReader(part, maxFieldSize+1))
	if err != nil {
		return fmt.Errorf("%w: reading field: %w", gs.ErrTransferIncomplete, err)
	}
	if len(raw) > maxFieldSize {
		return fmt.Errorf("%w: upload field too long", gs.ErrInvalidRequest)
	}

	name := part.FormName()
	value := strings.TrimSpace(string(raw))
	switch name {
	case gs.UploadFieldGroupID:
		req.GroupID, err = strconv.ParseInt(value, 10, 64)
	case gs.UploadFieldPath:
		req.Path = string(raw)
	case gs.UploadFieldUTCMillis:
		req.UTCMillis, err = strconv.ParseInt(value, 10, 64)
	case gs.UploadFieldSize:
		req.Size, err = strconv.ParseInt(value, 10, 64)
	case gs.UploadFieldChecksum:
		req.Checksum = value
	}
	if err != nil {
		return fmt.Errorf("%w: field %s: %w", gs.ErrInvalidRequest, name, err)
	}
	return nil
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req gs.PlanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	plan, err := s.planner.Plan(r.Context(), clientIDFrom(r.Context()), req.GroupID, req.Manifest)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	groupID, err := queryInt64(r, "group_id", true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ev, err := s.transfers.Lookup(r.Context(), groupID, r.URL.Query().Get("path"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", transfer.ContentType(ev.Path))
	h.Set("Content-Length", strconv.FormatInt(ev.Size, 10))
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(ev.Path)}))
	h.Set(gs.HeaderEventSequence, strconv.FormatInt(ev.Sequence, 10))
	h.Set(gs.HeaderContentSHA256, ev.Checksum)

	tw := &trackingWriter{w: w}
	if err := s.transfers.Download(r.Context(), ev, tw); err != nil {
		if tw.wrote {
			s.logger.Warn("download interrupted", "path", ev.Path, "error", err)
			return
		}
		for _, k := range []string{"Content-Length", "Content-Disposition", gs.HeaderEventSequence, gs.HeaderContentSHA256} {
			h.Del(k)
		}
		s.writeError(w, r, err)
	}
}

// trackingWriter records whether any body bytes were sent.
type trackingWriter struct {
	w     io.Writer
	wrote bool
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	if len(p) > 0 {
		t.wrote = true
	}
	return t.w.Write(p)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("%w: decoding body: %w", gs.ErrInvalidRequest, err)
	}
	return nil
}

func queryInt64(r *http.Request, name string, required bool) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		if required {
			return 0, fmt.Errorf("%w: %s is required", gs.ErrInvalidRequest, name)
		}
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", gs.ErrInvalidRequest, name, err)
	}
	return v, nil
}

func pathInt64(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", gs.ErrInvalidRequest, name, err)
	}
	return v, nil
}

func nonNil(events []gs.FileEvent) []gs.FileEvent {
	if events == nil {
		return []gs.FileEvent{}
	}
	return events
}
