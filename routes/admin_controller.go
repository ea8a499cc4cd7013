package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	json "github.com/goccy/go-json"

	"github.com/dtlabs/stepform/app"
	"github.com/dtlabs/stepform/httpx"
	"github.com/dtlabs/stepform/log"
	"github.com/dtlabs/stepform/survey"
)

type surveyRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Definition  json.RawMessage `json:"definition"`
}

func (req surveyRequest) parse() (survey.Survey, error) {
	return survey.Parse(req.Definition)
}

func CreateSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req surveyRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		doc, err := req.parse()
		if err != nil {
			writeStoreError(w, "admin.create_survey.definition", err)
			return
		}

		id, err := app.UpsertDraft(r.Context(), "", req.Title, req.Description, doc)
		if err != nil {
			writeStoreError(w, "admin.create_survey", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id": id,
		})
	}
}

func UpdateSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req surveyRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		doc, err := req.parse()
		if err != nil {
			writeStoreError(w, "admin.update_survey.definition", err)
			return
		}

		if _, err := app.UpsertDraft(r.Context(), id, req.Title, req.Description, doc); err != nil {
			writeStoreError(w, "admin.update_survey", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func ListSurveys(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := app.List(r.Context())
		if err != nil {
			writeStoreError(w, "admin.list_surveys", err)
			return
		}
		render.JSON(w, r, map[string]any{
			"surveys": recs,
		})
	}
}

func GetSurveyById(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := app.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeStoreError(w, "admin.get_survey", err)
			return
		}
		render.JSON(w, r, rec)
	}
}

func DeleteSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := app.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeStoreError(w, "admin.delete_survey", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// PublishSurvey flips a survey public, deriving its slug on first publish.
func PublishSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug, err := app.Publish(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeStoreError(w, "admin.publish_survey", err)
			return
		}
		render.JSON(w, r, map[string]any{
			"slug": slug,
		})
	}
}

func UnpublishSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := app.Unpublish(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeStoreError(w, "admin.unpublish_survey", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func GetSurveyResponses(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := app.Get(r.Context(), id); err != nil {
			writeStoreError(w, "admin.get_responses", err)
			return
		}

		responses, err := app.ListResponses(r.Context(), id)
		if err != nil {
			writeStoreError(w, "admin.get_responses", err)
			return
		}
		render.JSON(w, r, map[string]any{
			"responses": responses,
		})
	}
}

// GetSurveyQuestions is the admin inbox: every question of a survey,
// unanswered first.
func GetSurveyQuestions(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := app.Get(r.Context(), id); err != nil {
			writeStoreError(w, "admin.get_questions", err)
			return
		}

		questions, err := app.ListSurveyQuestions(r.Context(), id)
		if err != nil {
			writeStoreError(w, "admin.get_questions", err)
			return
		}
		render.JSON(w, r, map[string]any{
			"questions": questions,
		})
	}
}

type answerQuestionRequest struct {
	Answer string `json:"answer"`
}

func AnswerQuestion(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req answerQuestionRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		if err := app.AnswerQuestion(r.Context(), chi.URLParam(r, "id"), req.Answer); err != nil {
			writeStoreError(w, "admin.answer_question", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
