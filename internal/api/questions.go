package api

import (
	"net/http"
	"strconv"

	"github.com/ashureev/pairroom/internal/domain"
	"github.com/ashureev/pairroom/internal/questions"
)

func questionFilter(r *http.Request) (questions.Filter, bool) {
	q := r.URL.Query()
	f := questions.Filter{
		Difficulty: domain.Difficulty(q.Get("difficulty")),
		Category:   q.Get("category"),
	}
	switch f.Difficulty {
	case "", domain.DifficultyEasy, domain.DifficultyMedium, domain.DifficultyHard:
	default:
		return f, false
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return f, false
		}
		f.Limit = n
	}
	return f, true
}

// ListQuestions returns catalog questions filtered by difficulty and category.
func (h *Handler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	f, ok := questionFilter(r)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid query parameters")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"questions": h.questions.List(f)})
}

// RandomQuestion returns one random catalog question.
func (h *Handler) RandomQuestion(w http.ResponseWriter, r *http.Request) {
	f, ok := questionFilter(r)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid query parameters")
		return
	}
	q := h.questions.Random(f)
	if q == nil {
		Error(w, http.StatusNotFound, "no matching question")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"question": q})
}
