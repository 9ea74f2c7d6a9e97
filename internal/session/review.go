package session

import (
	"encoding/json"

	"github.com/algodrill/algodrill/internal/grading"
	"github.com/algodrill/algodrill/internal/question"
)

// ReviewItem pairs a question with what the learner answered and how it was graded.
type ReviewItem struct {
	Question    question.Question      `json:"question"`
	Answer      json.RawMessage        `json:"answer,omitempty"`
	Result      grading.QuestionResult `json:"result"`
	HintsUsed   []string               `json:"hintsUsed,omitempty"`
	Explanation string                 `json:"explanation,omitempty"`
}

// Review returns one item per question in quiz order. It is empty until the session
// is reviewing.
func Review(s State) []ReviewItem {
	if s.Status != StatusReviewing || s.Results == nil {
		return nil
	}
	items := make([]ReviewItem, len(s.Questions))
	for i, q := range s.Questions {
		res, ok := s.Results.Result(q.ID)
		if !ok {
			res = grading.QuestionResult{QuestionID: q.ID}
		}
		items[i] = ReviewItem{
			Question:    q.ReviewCopy(),
			Answer:      s.Answers[q.ID],
			Result:      res,
			HintsUsed:   s.HintsUsed[q.ID],
			Explanation: q.Explanation,
		}
	}
	return items
}

// CurrentReview is the review item at CurrentIndex.
func CurrentReview(s State) (ReviewItem, bool) {
	items := Review(s)
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(items) {
		return ReviewItem{}, false
	}
	return items[s.CurrentIndex], true
}

// View is a state safe to send to the learner. Questions carry no answer data until
// the session is reviewing.
type View struct {
	ID            string                     `json:"id"`
	QuizID        string                     `json:"quizId"`
	Questions     []question.View            `json:"questions"`
	CurrentIndex  int                        `json:"currentIndex"`
	Answers       map[string]json.RawMessage `json:"answers"`
	HintsUsed     map[string][]string        `json:"hintsUsed"`
	TimeRemaining *int                       `json:"timeRemaining"`
	Status        Status                     `json:"status"`
	Results       *grading.Results           `json:"results,omitempty"`
	Review        []ReviewItem               `json:"review,omitempty"`
}

func (s State) View() View {
	qs := make([]question.View, len(s.Questions))
	for i, q := range s.Questions {
		qs[i] = q.LearnerView()
	}
	return View{
		ID:            s.ID,
		QuizID:        s.QuizID,
		Questions:     qs,
		CurrentIndex:  s.CurrentIndex,
		Answers:       s.Answers,
		HintsUsed:     s.HintsUsed,
		TimeRemaining: s.TimeRemaining,
		Status:        s.Status,
		Results:       s.Results,
		Review:        Review(s),
	}
}
