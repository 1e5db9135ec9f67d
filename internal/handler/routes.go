package handler

import (
	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/meeting-agents/internal/middleware"
)

// Mount registers the meeting routes on r. Callers are expected to have
// installed authentication upstream.
func Mount(r chi.Router, meetings *MeetingHandler, stream *StreamHandler) {
	r.Route("/meetings", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireScope(middleware.ScopeMeetingsRead))
			r.Get("/", meetings.List)
			r.Get("/{id}", meetings.Get)
			r.Get("/{id}/conversation", meetings.Conversation)
			r.Get("/{id}/events", meetings.Events)
			r.Get("/{id}/stream", stream.Stream)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireScope(middleware.ScopeMeetingsWrite))
			r.Post("/", meetings.Schedule)
			r.Post("/{id}/start", meetings.Start)
			r.Post("/{id}/end", meetings.End)
			r.Post("/{id}/next-speaker", meetings.NextSpeaker)
		})

		r.With(middleware.RequireScope(middleware.ScopeTranscribe)).
			Post("/{id}/transcription", meetings.Transcription)
	})
}
