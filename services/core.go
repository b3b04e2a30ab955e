// Package services holds the issue engagement and lifecycle core: the vote
// ledger, the status lifecycle engine, comments, and the notification
// dispatcher. Every operation takes the acting user from its context.
package services

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"civicpulse-be/apperr"
	"civicpulse-be/bus"
	"civicpulse-be/logging"
	"civicpulse-be/models"
	"civicpulse-be/store"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Options tunes the core. Clock and IDs are injectable for deterministic tests.
type Options struct {
	Now   func() time.Time
	NewID func() string
	// Classifier picks a department for reports that name none. Optional.
	Classifier DepartmentClassifier
	// ClassifyTimeout caps how long a report waits on the classifier before
	// falling back to the default department.
	ClassifyTimeout time.Duration
}

// DepartmentClassifier suggests the department responsible for an issue.
type DepartmentClassifier interface {
	Classify(ctx context.Context, issue models.Issue) (string, error)
}

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	if o.ClassifyTimeout <= 0 {
		o.ClassifyTimeout = defaultClassifyTimeout
	}
	return o
}

// Core wires the engagement components over one store and one bus.
type Core struct {
	Ledger     *VoteLedger
	Lifecycle  *LifecycleEngine
	Comments   *CommentService
	Dispatcher *Dispatcher
}

func NewCore(s store.Store, b bus.Bus, opts Options) *Core {
	opts = opts.withDefaults()
	dispatcher := NewDispatcher(s, s, b, opts)
	ledger := NewVoteLedger(s, s, b, opts)
	return &Core{
		Ledger:     ledger,
		Lifecycle:  NewLifecycleEngine(s, s, ledger, dispatcher, b, opts),
		Comments:   NewCommentService(s, s, dispatcher, b, opts),
		Dispatcher: dispatcher,
	}
}

// storeErr classifies a store failure: missing rows are NotFound, anything
// else means the store is unreachable or failing.
func storeErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return apperr.Wrap(err, apperr.KindNotFound, what+" not found")
	}
	return apperr.Upstream(err, what)
}

const (
	publishTimeout         = 5 * time.Second
	defaultClassifyTimeout = 10 * time.Second
)

// publish is best-effort: the mutation has already been applied, and
// surfacing a bus failure would invite the caller to repeat it.
func publish(ctx context.Context, b bus.Bus, topic string, action bus.Action, payload any, attrs map[string]string) {
	if b == nil {
		return
	}
	msg, err := bus.NewMessage(topic, action, payload, attrs)
	if err == nil {
		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		err = b.Publish(pubCtx, topic, msg)
		cancel()
	}
	if err != nil {
		logging.Warn(ctx, "bus publish failed",
			slog.String("topic", topic),
			slog.String("action", string(action)),
			slog.Any("err", apperr.Loggable(err)))
	}
}

func validationErr(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return apperr.Newf(apperr.KindValidationFailed, "%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
	}
	return apperr.Wrap(err, apperr.KindValidationFailed, "invalid input")
}
