package controller

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"askhub_backend/internal/middleware"
	"askhub_backend/internal/model"
	"askhub_backend/pkg/apperr"
)

type Voter interface {
	CastVote(ctx context.Context, voterID uint, target model.VoteTarget, dir model.Direction) (*model.Vote, error)
	Tally(ctx context.Context, target model.VoteTarget) (model.VoteTally, error)
}

type VoteController struct {
	votes Voter
}

func NewVoteController(votes Voter) *VoteController {
	return &VoteController{votes: votes}
}

type VoteInput struct {
	Direction int `json:"direction" validate:"required,oneof=1 -1"`
}

// VoteResult carries the caller's vote after the toggle (nil when it was
// retracted) and the target's new tally.
type VoteResult struct {
	Vote  *model.Vote     `json:"vote"`
	Tally model.VoteTally `json:"tally"`
	Score int64           `json:"score"`
}

func (vc *VoteController) VoteQuestion(c *fiber.Ctx) error {
	return vc.cast(c, model.TargetQuestion)
}

func (vc *VoteController) VoteAnswer(c *fiber.Ctx) error {
	return vc.cast(c, model.TargetAnswer)
}

func (vc *VoteController) cast(c *fiber.Ctx, kind model.TargetKind) error {
	claims, err := middleware.CurrentUser(c)
	if err != nil {
		return err
	}

	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return apperr.Validation("%s id must be a positive integer", kind)
	}

	input := new(VoteInput)
	if err := parseBody(c, input); err != nil {
		return err
	}

	ctx := c.UserContext()
	target := model.VoteTarget{Kind: kind, ID: uint(id)}

	vote, err := vc.votes.CastVote(ctx, claims.UserID, target, model.Direction(input.Direction))
	if err != nil {
		return err
	}

	tally, err := vc.votes.Tally(ctx, target)
	if err != nil {
		return err
	}

	return ok(c, VoteResult{Vote: vote, Tally: tally, Score: tally.Score()})
}
