package api

import (
	"io"
	"net/http"

	"github.com/hackgods/clinic-appointment-scheduling/internal/backup"
	"github.com/hackgods/clinic-appointment-scheduling/internal/clinic"
	"github.com/hackgods/clinic-appointment-scheduling/pkg/logging"
)

func getSettingsHandler(catalog *clinic.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, catalog.Settings())
	}
}

func putSettingsHandler(catalog *clinic.Catalog, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req clinic.Settings
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := catalog.UpdateSettings(r.Context(), req); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, catalog.Settings())
	}
}

func listTreatmentsHandler(catalog *clinic.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, listOf(catalog.Treatments()))
	}
}

func putTreatmentsHandler(catalog *clinic.Catalog, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TreatmentsRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := catalog.ReplaceTreatments(r.Context(), req.Treatments); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, listOf(catalog.Treatments()))
	}
}

func exportBackupHandler(svc *backup.Service, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := svc.Export(r.Context())
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		w.Header().Set("Content-Disposition", `attachment; filename="clinic-backup.json"`)
		writeJSON(w, http.StatusOK, doc)
	}
}

func importBackupHandler(svc *backup.Service, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		sum, err := svc.Import(r.Context(), data)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}
