package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	json "github.com/goccy/go-json"

	"github.com/dtlabs/stepform/app"
	"github.com/dtlabs/stepform/httpx"
	"github.com/dtlabs/stepform/log"
)

// PublicGetSurvey resolves a published survey by slug. This is the only way
// in for respondents: private surveys are invisible here.
func PublicGetSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")

		rec, err := app.GetPublicSurvey(r.Context(), slug)
		if err != nil {
			writeStoreError(w, "public.get_survey", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"slug":        slug,
			"title":       rec.Title,
			"description": rec.Description,
			"definition":  json.RawMessage(rec.Definition),
		})
	}
}

// PublicEnsureResponse returns the caller's response row for the survey,
// creating it on first contact. Callers without a valid respondent token get
// a fresh one, both in the body and as a cookie.
func PublicEnsureResponse(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")

		var token string
		respondent, ok := respondentID(r, app.RespondentSecret)
		if !ok {
			var err error
			respondent, token, err = mintRespondentToken(app.RespondentSecret)
			if err != nil {
				httpx.LogInternalError(w, "public.ensure_response.mint_token", err)
				return
			}
		}

		rec, err := app.EnsureResponse(r.Context(), slug, respondent)
		if err != nil {
			writeStoreError(w, "public.ensure_response", err)
			return
		}

		body := map[string]any{
			"response_id": rec.ID,
			"status":      rec.Status,
			"answers":     rec.Answers,
		}
		if token != "" {
			setRespondentCookie(w, token)
			body["respondent_token"] = token
		}
		render.JSON(w, r, body)
	}
}

// PublicGetResponse returns the caller's saved answers.
func PublicGetResponse(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")

		respondent, ok := respondentID(r, app.RespondentSecret)
		if !ok {
			httpx.LogStatus(w, http.StatusUnauthorized, log.DebugLevel, "public.get_response.token")
			return
		}

		rec, err := app.GetResponse(r.Context(), slug, respondent)
		if err != nil {
			writeStoreError(w, "public.get_response", err)
			return
		}
		render.JSON(w, r, rec)
	}
}

type saveResponseRequest struct {
	Answers       map[string]any `json:"answers"`
	MarkCompleted bool           `json:"mark_completed"`
}

// PublicSaveResponse overwrites the caller's answers. mark_completed seals
// the response; further saves are rejected with 409.
func PublicSaveResponse(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")

		respondent, ok := respondentID(r, app.RespondentSecret)
		if !ok {
			httpx.LogStatus(w, http.StatusUnauthorized, log.DebugLevel, "public.save_response.token")
			return
		}

		var body saveResponseRequest
		if err := render.DecodeJSON(r.Body, &body); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		err := app.SaveResponse(r.Context(), slug, respondent, body.Answers, body.MarkCompleted)
		if err != nil {
			writeStoreError(w, "public.save_response", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type askQuestionRequest struct {
	Question string `json:"question"`
}

// PublicAskQuestion files a respondent question against one field.
func PublicAskQuestion(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")
		fieldID := chi.URLParam(r, "fieldID")

		var body askQuestionRequest
		if err := render.DecodeJSON(r.Body, &body); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		q, err := app.AskQuestion(r.Context(), slug, fieldID, body.Question)
		if err != nil {
			writeStoreError(w, "public.ask_question", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, q)
	}
}

// PublicListQuestions returns a field's question thread, oldest first.
func PublicListQuestions(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")
		fieldID := chi.URLParam(r, "fieldID")

		questions, err := app.ListQuestions(r.Context(), slug, fieldID)
		if err != nil {
			writeStoreError(w, "public.list_questions", err)
			return
		}
		render.JSON(w, r, map[string]any{
			"questions": questions,
		})
	}
}
