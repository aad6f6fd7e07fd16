package model

import (
	"fmt"
	"time"
)

type TargetKind string

const (
	TargetQuestion TargetKind = "question"
	TargetAnswer   TargetKind = "answer"
)

// VoteTarget names exactly one votable entity.
type VoteTarget struct {
	Kind TargetKind
	ID   uint
}

func QuestionTarget(id uint) VoteTarget { return VoteTarget{Kind: TargetQuestion, ID: id} }
func AnswerTarget(id uint) VoteTarget   { return VoteTarget{Kind: TargetAnswer, ID: id} }

func (t VoteTarget) Validate() error {
	if t.Kind != TargetQuestion && t.Kind != TargetAnswer {
		return fmt.Errorf("unknown vote target kind %q", t.Kind)
	}
	if t.ID == 0 {
		return fmt.Errorf("%s id is required", t.Kind)
	}
	return nil
}

func (t VoteTarget) String() string {
	return fmt.Sprintf("%s:%d", t.Kind, t.ID)
}

type Direction int

const (
	Upvote   Direction = 1
	Downvote Direction = -1
)

func (d Direction) Valid() bool {
	return d == Upvote || d == Downvote
}

// Vote is one user's vote on a question or an answer. Postgres treats NULLs as
// distinct, so each unique index only constrains rows of its own target kind.
type Vote struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	UserID     uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_votes_user_question;uniqueIndex:idx_votes_user_answer"`
	QuestionID *uint     `json:"question_id,omitempty" gorm:"index;uniqueIndex:idx_votes_user_question;check:chk_votes_single_target,(question_id IS NULL) <> (answer_id IS NULL)"`
	AnswerID   *uint     `json:"answer_id,omitempty" gorm:"index;uniqueIndex:idx_votes_user_answer"`
	Value      int       `json:"value" gorm:"not null;check:chk_votes_value,value IN (-1, 1)"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewVote builds an unsaved vote with the target column matching t.Kind.
func NewVote(userID uint, t VoteTarget, d Direction) *Vote {
	id := t.ID
	v := &Vote{UserID: userID, Value: int(d)}
	switch t.Kind {
	case TargetQuestion:
		v.QuestionID = &id
	case TargetAnswer:
		v.AnswerID = &id
	}
	return v
}

func (v *Vote) Target() VoteTarget {
	if v.QuestionID != nil {
		return QuestionTarget(*v.QuestionID)
	}
	if v.AnswerID != nil {
		return AnswerTarget(*v.AnswerID)
	}
	return VoteTarget{}
}

func (v *Vote) Direction() Direction {
	return Direction(v.Value)
}

// VoteTally summarises the votes on a target.
type VoteTally struct {
	Upvotes   int64 `json:"upvotes"`
	Downvotes int64 `json:"downvotes"`
}

func (t VoteTally) Score() int64 {
	return t.Upvotes - t.Downvotes
}
