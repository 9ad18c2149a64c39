package action

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"

	"github.com/webvoice/access-assistant/internal/browser"
)

// BeforeScrollFunc decides whether a pending scroll is still necessary.
// Returning true skips the scroll (the step is recorded as successful with a
// skip marker). Panics are contained and treated as "do not skip".
type BeforeScrollFunc func(page playwright.Page, remaining []Spec, query string) bool

// AfterEachFunc runs after every executed action. Failures are logged and
// never affect the step's own outcome.
type AfterEachFunc func(page playwright.Page, index int, step StepResult)

// Hooks are the injected extension points of one execution run.
type Hooks struct {
	BeforeScroll BeforeScrollFunc
	AfterEach    AfterEachFunc
}

const (
	// click/fill tend to trigger navigation or async UI work, so they settle
	// longer than press/scroll
	clickSettleDelay = 1 * time.Second
	lightSettleDelay = 500 * time.Millisecond
)

// Executor runs action sequences against a page. Per-step failures are
// values in the report; only call-level preconditions return errors.
type Executor struct {
	logger zerolog.Logger
}

func NewExecutor(logger zerolog.Logger) *Executor {
	return &Executor{logger: logger}
}

// Run executes actions against an externally owned page and leaves the page
// open. Every input action produces exactly one step, in input order.
func (e *Executor) Run(page playwright.Page, actions []Spec, query string, hooks Hooks) Report {
	report := Report{Logs: []string{}}
	log := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		report.Logs = append(report.Logs, msg)
		e.logger.Debug().Msg(msg)
	}

	for i, act := range actions {
		log("Executing action %d/%d: %s %s", i+1, len(actions), act.Action, act.Target)
		step := e.runStep(page, act, actions[i+1:], query, hooks, log)
		report.Steps = append(report.Steps, step)

		if hooks.AfterEach != nil && step.Skipped == "" {
			e.safeAfterEach(hooks.AfterEach, page, i, step, log)
		}
	}

	report.Status = statusFor(report.Steps)
	report.FinalURL = page.URL()
	return report
}

// Execute is the self-contained mode: it opens its own page, navigates, runs
// the actions and closes the page again. A navigation failure yields an
// error-status report with no steps.
func (e *Executor) Execute(ctx context.Context, launcher *browser.Launcher, url string, actions []Spec, query string, hooks Hooks) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{Status: StatusError}, err
	}
	page, closePage, err := launcher.NewPage()
	if err != nil {
		return Report{Status: StatusError, Logs: []string{"Failed to open page: " + err.Error()}}, err
	}
	defer closePage()

	if err := browser.Navigate(page, url); err != nil {
		return Report{
			Status: StatusError,
			Logs:   []string{"Navigation error: " + err.Error()},
		}, fmt.Errorf("navigate %s: %w", url, err)
	}

	report := e.Run(page, actions, query, hooks)
	report.Logs = append(report.Logs, "All actions executed.")
	return report, nil
}

type logFunc func(format string, args ...any)

func (e *Executor) runStep(page playwright.Page, act Spec, remaining []Spec, query string, hooks Hooks, log logFunc) StepResult {
	step := StepResult{
		Action:    act.Action,
		Target:    act.Target,
		Direction: act.Direction,
		Amount:    act.Amount,
	}
	if act.Action == Fill {
		step.Value = act.Value
	}
	if act.Action == Press {
		step.Key = act.Key
	}

	switch act.Action {
	case Scroll:
		e.runScroll(page, act, remaining, query, hooks, &step, log)
		// settle even when skipped so layout and lazy content stabilize
		time.Sleep(lightSettleDelay)

	case Press:
		e.runPress(page, act, &step, log)
		time.Sleep(lightSettleDelay)

	case Click, Fill:
		e.runClickOrFill(page, act, &step, log)
		time.Sleep(clickSettleDelay)

	case Navigate:
		if act.Target == "" {
			step.Error = "Missing target"
			log(step.Error)
			break
		}
		if err := browser.Navigate(page, act.Target); err != nil {
			step.Error = err.Error()
			log("Navigation error: %s", err)
			break
		}
		step.Success = true
		log("Navigated to %s", act.Target)
		time.Sleep(lightSettleDelay)

	default:
		step.Error = fmt.Sprintf("invalid kind %q", act.Action)
		log(step.Error)
	}
	return step
}

func (e *Executor) runScroll(page playwright.Page, act Spec, remaining []Spec, query string, hooks Hooks, step *StepResult, log logFunc) {
	if hooks.BeforeScroll != nil && e.safeBeforeScroll(hooks.BeforeScroll, page, remaining, query, log) {
		step.Success = true
		step.Skipped = SkipDataSufficient
		log("Scroll skipped: data already sufficient")
		return
	}
	dx, dy := scrollDelta(act.Direction, act.Amount)
	_, err := page.Evaluate(`([dx, dy]) => window.scrollBy(dx, dy)`, []int{dx, dy})
	if err != nil {
		step.Error = err.Error()
		log("Scroll error: %s", err)
		return
	}
	step.Success = true
	log("Scrolled %s by %d", act.Direction, act.Amount)
}

func (e *Executor) runPress(page playwright.Page, act Spec, step *StepResult, log logFunc) {
	key := translateKey(act.Key)
	if act.Target != "" {
		if loc, via := resolveTarget(page, Press, act.Target); loc != nil {
			_ = loc.ScrollIntoViewIfNeeded()
			if err := loc.Press(key); err != nil {
				step.Error = err.Error()
				log("Press error on '%s': %s", act.Target, err)
				return
			}
			step.Success = true
			log("Pressed %q on '%s' (via %s)", act.Key, act.Target, via)
			return
		}
		log("Target '%s' not found, pressing %q on focused element", act.Target, act.Key)
	}
	if err := page.Keyboard().Press(key); err != nil {
		step.Error = err.Error()
		log("Press error: %s", err)
		return
	}
	step.Success = true
	log("Pressed %q", act.Key)
}

func (e *Executor) runClickOrFill(page playwright.Page, act Spec, step *StepResult, log logFunc) {
	if act.Target == "" {
		// rejected before any DOM lookup
		step.Error = "Missing target"
		log(step.Error)
		return
	}
	loc, via := resolveTarget(page, act.Action, act.Target)
	if loc == nil {
		step.Error = "No element found for: " + act.Target
		log(step.Error)
		return
	}
	log("Found element matching '%s' (via %s)", act.Target, via)
	_ = loc.ScrollIntoViewIfNeeded()

	var err error
	if act.Action == Fill {
		err = loc.Fill(act.Value)
	} else {
		err = loc.Click()
	}
	if err != nil {
		step.Error = err.Error()
		log("Error executing %s on '%s': %s", act.Action, act.Target, err)
		return
	}
	step.Success = true
	if act.Action == Fill {
		log("Filled element '%s' with '%s'", act.Target, act.Value)
	} else {
		log("Clicked element '%s'", act.Target)
	}
}

func (e *Executor) safeBeforeScroll(fn BeforeScrollFunc, page playwright.Page, remaining []Spec, query string, log logFunc) (skip bool) {
	defer func() {
		if r := recover(); r != nil {
			log("before-scroll callback panicked: %v", r)
			skip = false
		}
	}()
	return fn(page, remaining, query)
}

func (e *Executor) safeAfterEach(fn AfterEachFunc, page playwright.Page, index int, step StepResult, log logFunc) {
	defer func() {
		if r := recover(); r != nil {
			log("after-action callback panicked: %v", r)
		}
	}()
	fn(page, index, step)
}
