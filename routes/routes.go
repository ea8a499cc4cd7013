package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"

	"github.com/dtlabs/stepform/app"
	"github.com/dtlabs/stepform/httpx"
	"github.com/dtlabs/stepform/log"
	"github.com/dtlabs/stepform/routes/middlewares"
	"github.com/dtlabs/stepform/store"
	"github.com/dtlabs/stepform/survey"
)

func Wire(app app.App) http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.Logger, middleware.Recoverer)

	root.Mount("/api", apiRouter(app))

	return root
}

func apiRouter(app app.App) http.Handler {
	api := chi.NewRouter()

	// respondent surface, keyed by public slug
	api.Route("/s/{slug}", func(r chi.Router) {
		r.Get("/", PublicGetSurvey(app))
		r.Post("/responses", PublicEnsureResponse(app))
		r.Get("/responses/self", PublicGetResponse(app))
		r.Put("/responses/self", PublicSaveResponse(app))
		r.Post("/fields/{fieldID}/questions", PublicAskQuestion(app))
		r.Get("/fields/{fieldID}/questions", PublicListQuestions(app))
	})

	api.Route("/admin", func(r chi.Router) {
		r.Use(middlewares.Admin(app.TokenSecret))

		// CRUD survey
		r.Post("/surveys", CreateSurvey(app))
		r.Get("/surveys", ListSurveys(app))
		r.Get("/surveys/{id}", GetSurveyById(app))
		r.Put("/surveys/{id}", UpdateSurvey(app))
		r.Delete("/surveys/{id}", DeleteSurvey(app))

		// publication lifecycle
		r.Post("/surveys/{id}/publish", PublishSurvey(app))
		r.Post("/surveys/{id}/unpublish", UnpublishSurvey(app))

		r.Get("/surveys/{id}/responses", GetSurveyResponses(app))
		r.Get("/surveys/{id}/questions", GetSurveyQuestions(app))
		r.Post("/questions/{id}/answer", AnswerQuestion(app))
	})

	api.Post("/login", Login(app))
	api.Post("/refresh", Refresh(app))

	return api
}

// writeStoreError maps store and schema errors onto HTTP statuses. Anything
// unrecognized is a 500 with the original error in the log only.
func writeStoreError(w http.ResponseWriter, code string, err error) {
	var vErr *survey.ValidationError
	switch {
	case errors.Is(err, store.ErrNotFound):
		httpx.LogNotFound(w, code, err)
	case errors.Is(err, store.ErrCompleted):
		httpx.LogStatusMsg(w, http.StatusConflict, log.DebugLevel, code, "%s", err)
	case errors.Is(err, store.ErrTitleRequired),
		errors.Is(err, store.ErrQuestionRequired),
		errors.Is(err, store.ErrAnswerRequired):
		httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, code, "%s", err)
	case errors.As(err, &vErr):
		httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, code, "%s", vErr)
	default:
		httpx.LogInternalError(w, code, err)
	}
}
