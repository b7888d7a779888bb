package server

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/medveriground/bbox-annotator/pkg/export"
	"github.com/medveriground/bbox-annotator/pkg/imagery"
	"github.com/medveriground/bbox-annotator/pkg/render"
	"github.com/medveriground/bbox-annotator/pkg/session"
	"github.com/medveriground/bbox-annotator/pkg/types"
)

type MoveRequest struct {
	DX int `json:"dx"`
	DY int `json:"dy"`
}

type ResizeRequest struct {
	X1 *int `json:"x1" validate:"required"`
	Y1 *int `json:"y1" validate:"required"`
	X2 *int `json:"x2" validate:"required"`
	Y2 *int `json:"y2" validate:"required"`
}

type FlagRequest struct {
	Flagged *bool `json:"flagged" validate:"required"`
}

type DecideRequest struct {
	Decision types.Decision `json:"decision" validate:"required,oneof=accept adjust reject no_grounding"`
}

type ConfirmRejectRequest struct {
	Reason string `json:"reason" validate:"required"`
	Detail string `json:"detail"`
}

// StartResponse answers a successful session start
type StartResponse struct {
	SessionID string       `json:"session_id"`
	Resumed   int          `json:"resumed"`
	View      session.View `json:"view"`
}

// DecisionResponse answers a recorded decision
type DecisionResponse struct {
	Outcome *session.Outcome `json:"outcome,omitempty"`
	View    session.View     `json:"view"`
}

type sessionController struct {
	s *Server
}

func newSessionController(s *Server) *sessionController {
	return &sessionController{s: s}
}

func (c *sessionController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/session")
	h.Post("/start", c.Start)
	h.Get("", c.Show)
	h.Get("/image", c.Image)
	h.Get("/stats", c.Stats)
	h.Get("/export", c.ExportJSON)
	h.Get("/export.xlsx", c.ExportXLSX)

	h.Post("/move", c.Move)
	h.Post("/resize", c.Resize)
	h.Post("/reset", c.Reset)
	h.Post("/flag", c.Flag)
	h.Post("/skip", c.Skip)

	h.Post("/decide", c.Decide)
	h.Post("/accept", c.Accept)
	h.Post("/no-grounding", c.NoGrounding)
	h.Post("/reject", c.BeginReject)
	h.Post("/reject/confirm", c.ConfirmReject)
	h.Post("/reject/cancel", c.CancelReject)
}

// Start loads a new session. Blank fields fall back to the configured
// defaults. The previous session stays in place when loading fails.
func (c *sessionController) Start(ctx *fiber.Ctx) error {
	var req session.LoadRequest
	if err := parse(ctx, &req); err != nil {
		return err
	}
	defaults := c.s.cfg.Session
	if req.ProposalsPath == "" {
		req.ProposalsPath = defaults.ProposalsPath
	}
	if req.ImagesDir == "" {
		req.ImagesDir = defaults.ImagesDir
	}
	if req.AnnotatorID == "" {
		req.AnnotatorID = defaults.AnnotatorID
	}
	if err := check(req); err != nil {
		return err
	}

	images := imagery.NewLoader(req.ImagesDir, time.Duration(defaults.ImageCacheMinutes)*time.Minute)
	sess := session.New(
		session.WithClock(c.s.clock),
		session.WithLocalStore(c.s.local),
		session.WithPersister(c.s.persister),
		session.WithSizer(images),
	)
	if err := sess.Load(ctx.UserContext(), req); err != nil {
		c.s.log.Warn("session", "start rejected", map[string]interface{}{
			"annotator_id": req.AnnotatorID,
			"error":        err.Error(),
		})
		return err
	}

	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	c.s.sess = sess
	c.s.images = images
	c.s.sessionID = uuid.NewString()
	c.s.metrics.Sessions.Inc()
	c.observeProgress()

	c.s.log.Info("session", "started", map[string]interface{}{
		"session_id":   c.s.sessionID,
		"annotator_id": sess.AnnotatorID(),
		"examples":     sess.Examples(),
		"resumed":      sess.Resumed(),
		"persist_mode": sess.PersistMode(),
	})

	return ctx.JSON(success("Session started", StartResponse{
		SessionID: c.s.sessionID,
		Resumed:   sess.Resumed(),
		View:      sess.View(),
	}))
}

func (c *sessionController) Show(ctx *fiber.Ctx) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return ctx.JSON(success("Success get session", c.s.sess.View()))
}

// mutate runs fn under the session lock and answers with the new view
func (c *sessionController) mutate(ctx *fiber.Ctx, message string, fn func(*session.Session) error) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	if err := fn(c.s.sess); err != nil {
		return err
	}
	c.observeProgress()
	return ctx.JSON(success(message, c.s.sess.View()))
}

func (c *sessionController) Move(ctx *fiber.Ctx) error {
	var req MoveRequest
	if err := bind(ctx, &req); err != nil {
		return err
	}
	return c.mutate(ctx, "Box moved", func(sess *session.Session) error {
		return sess.Move(req.DX, req.DY)
	})
}

func (c *sessionController) Resize(ctx *fiber.Ctx) error {
	var req ResizeRequest
	if err := bind(ctx, &req); err != nil {
		return err
	}
	box := types.PixelBox{X1: *req.X1, Y1: *req.Y1, X2: *req.X2, Y2: *req.Y2}
	return c.mutate(ctx, "Box resized", func(sess *session.Session) error {
		return sess.Resize(box)
	})
}

func (c *sessionController) Reset(ctx *fiber.Ctx) error {
	return c.mutate(ctx, "Box reset", func(sess *session.Session) error {
		return sess.Reset()
	})
}

func (c *sessionController) Flag(ctx *fiber.Ctx) error {
	var req FlagRequest
	if err := bind(ctx, &req); err != nil {
		return err
	}
	return c.mutate(ctx, "Flag updated", func(sess *session.Session) error {
		return sess.SetFlagged(*req.Flagged)
	})
}

func (c *sessionController) Skip(ctx *fiber.Ctx) error {
	return c.mutate(ctx, "Evidence skipped", func(sess *session.Session) error {
		if err := sess.Skip(); err != nil {
			return err
		}
		c.s.metrics.Skips.Inc()
		return nil
	})
}

func (c *sessionController) BeginReject(ctx *fiber.Ctx) error {
	return c.mutate(ctx, "Choose a rejection reason", func(sess *session.Session) error {
		return sess.BeginReject()
	})
}

func (c *sessionController) CancelReject(ctx *fiber.Ctx) error {
	return c.mutate(ctx, "Rejection cancelled", func(sess *session.Session) error {
		return sess.CancelReject()
	})
}

// decide runs a recording operation under the lock, then reports the
// persistence outcome
func (c *sessionController) decide(ctx *fiber.Ctx, fn func(context.Context, *session.Session) (*session.Outcome, error)) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	out, err := fn(ctx.UserContext(), c.s.sess)
	if err != nil {
		return err
	}
	c.observeProgress()

	message := "Dialog opened"
	if out != nil {
		c.observeOutcome(out)
		message = out.Persist.Message
	}
	return ctx.JSON(success(message, DecisionResponse{Outcome: out, View: c.s.sess.View()}))
}

func (c *sessionController) Decide(ctx *fiber.Ctx) error {
	var req DecideRequest
	if err := bind(ctx, &req); err != nil {
		return err
	}
	return c.decide(ctx, func(rctx context.Context, sess *session.Session) (*session.Outcome, error) {
		return sess.Decide(rctx, req.Decision)
	})
}

func (c *sessionController) Accept(ctx *fiber.Ctx) error {
	return c.decide(ctx, func(rctx context.Context, sess *session.Session) (*session.Outcome, error) {
		return sess.Accept(rctx)
	})
}

func (c *sessionController) NoGrounding(ctx *fiber.Ctx) error {
	return c.decide(ctx, func(rctx context.Context, sess *session.Session) (*session.Outcome, error) {
		return sess.NoGrounding(rctx)
	})
}

func (c *sessionController) ConfirmReject(ctx *fiber.Ctx) error {
	var req ConfirmRejectRequest
	if err := bind(ctx, &req); err != nil {
		return err
	}
	return c.decide(ctx, func(rctx context.Context, sess *session.Session) (*session.Outcome, error) {
		return sess.ConfirmReject(rctx, req.Reason, req.Detail)
	})
}

// Image renders the current evidence's image with its working box. Query
// parameters: format overrides the configured encoding, max bounds both
// sides, plain omits the box.
func (c *sessionController) Image(ctx *fiber.Ctx) error {
	c.s.mu.Lock()
	sess, images := c.s.sess, c.s.images
	ex, ok := sess.Example()
	box, adjusted := sess.Current(), sess.Adjusted()
	_, sizeErr := sess.ImageSize()
	c.s.mu.Unlock()

	if !ok || images == nil {
		return session.ErrNotActive
	}
	if sizeErr != nil {
		return sizeErr
	}

	img, err := images.Load(ex.ImagePath)
	if err != nil {
		return fmt.Errorf("%w: %v", session.ErrImageUnavailable, err)
	}

	rc := c.s.cfg.Render
	format := ctx.Query("format", rc.Format)
	if ctx.QueryBool("plain") {
		box = types.PixelGrounding{}
	}
	opts := render.Options{Adjusted: adjusted, MaxWidth: rc.MaxWidth, MaxHeight: rc.MaxHeight}
	if n := ctx.QueryInt("max"); n > 0 {
		opts.MaxWidth, opts.MaxHeight = n, n
	}
	out := render.Overlay(img, box, opts)

	var buf bytes.Buffer
	if err := render.Encode(&buf, out, format, rc.Quality); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	ctx.Set(fiber.HeaderContentType, render.ContentType(format))
	ctx.Set(fiber.HeaderCacheControl, "no-store")
	return ctx.Send(buf.Bytes())
}

func (c *sessionController) Stats(ctx *fiber.Ctx) error {
	c.s.mu.Lock()
	records := c.s.sess.Records()
	c.s.mu.Unlock()
	return ctx.JSON(success("Success get stats", export.Summarize(records)))
}

func (c *sessionController) ExportJSON(ctx *fiber.Ctx) error {
	c.s.mu.Lock()
	records, id := c.s.sess.Records(), c.s.sess.AnnotatorID()
	c.s.mu.Unlock()

	if id == "" {
		return session.ErrNotActive
	}
	data, name, err := export.JSON(records, id)
	if err != nil {
		return err
	}
	ctx.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	ctx.Attachment(name)
	return ctx.Send(data)
}

func (c *sessionController) ExportXLSX(ctx *fiber.Ctx) error {
	c.s.mu.Lock()
	records, id := c.s.sess.Records(), c.s.sess.AnnotatorID()
	c.s.mu.Unlock()

	if id == "" {
		return session.ErrNotActive
	}
	data, err := export.XLSX(records)
	if err != nil {
		return err
	}
	ctx.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	ctx.Attachment(fmt.Sprintf("annotations_%s.xlsx", id))
	return ctx.Send(data)
}

// observeOutcome counts a decision and logs a failed save. Failures never
// fail the request; the status travels back in the outcome.
func (c *sessionController) observeOutcome(out *session.Outcome) {
	c.s.metrics.ObserveDecision(string(out.Record.Decision))
	c.s.metrics.ObservePersist(string(out.Persist.Mode), out.Persist.OK)

	details := map[string]interface{}{
		"session_id": c.s.sessionID,
		"example_id": out.Record.ExampleID,
		"evid_index": out.Record.EvidIndex,
		"decision":   out.Record.Decision,
		"mode":       out.Persist.Mode,
		"count":      out.Persist.Count,
	}
	if !out.Persist.OK {
		details["error"] = out.Persist.Message
		details["attempts"] = out.Persist.Attempts
		c.s.log.Warn("session", "save failed", details)
		return
	}
	c.s.log.Debug("session", "decision saved", details)
	if out.Complete {
		c.s.log.Info("session", "complete", map[string]interface{}{
			"session_id": c.s.sessionID,
			"records":    out.Persist.Count,
		})
	}
}

func (c *sessionController) observeProgress() {
	p := c.s.sess.Progress()
	c.s.metrics.SetProgress(p.Done, p.Total)
}

// Reasons lists the fixed rejection reasons
func (s *Server) Reasons(ctx *fiber.Ctx) error {
	return ctx.JSON(success("Success get reasons", fiber.Map{
		"reasons": types.RejectReasons(),
		"other":   types.OtherReason,
	}))
}
