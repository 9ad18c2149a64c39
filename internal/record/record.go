// Package record captures ground-truth action sequences by watching a human
// operate a visible page. DOM listeners report into exposed bindings; the
// call blocks until the operator signals stop, then the accumulated actions
// come back in the executor's wire schema.
package record

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"

	"github.com/webvoice/access-assistant/internal/action"
	"github.com/webvoice/access-assistant/internal/browser"
)

// StopFunc blocks until the operator wants to stop recording. Recording is
// human-in-the-loop by nature; there is no automated or retryable variant.
type StopFunc func() error

// ConsoleStop waits for a line (typically just Enter) on in.
func ConsoleStop(in io.Reader, out io.Writer) StopFunc {
	return func() error {
		fmt.Fprintln(out, "Perform your manual actions in the browser window now...")
		fmt.Fprint(out, "Press Enter to stop recording and save actions... ")
		reader := bufio.NewReader(in)
		_, err := reader.ReadString('\n')
		return err
	}
}

type Recorder struct {
	logger zerolog.Logger
}

func New(logger zerolog.Logger) *Recorder {
	return &Recorder{logger: logger}
}

// Record opens url in a visible browser of its own, captures the operator's
// clicks, fills, key presses and scrolls until stop returns, then tears the
// browser down and returns the actions in capture order.
func (r *Recorder) Record(ctx context.Context, url string, stop StopFunc) ([]action.Spec, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	launcher, err := browser.NewLauncher(false)
	if err != nil {
		return nil, err
	}
	defer launcher.Close()
	page, closePage, err := launcher.NewPage()
	if err != nil {
		return nil, err
	}
	defer closePage()

	rec := &recording{}
	if err := r.bind(page, rec); err != nil {
		return nil, err
	}
	if err := browser.Navigate(page, url); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	if _, err := page.Evaluate(captureScript); err != nil {
		return nil, fmt.Errorf("install capture listeners: %w", err)
	}

	r.logger.Info().Str("url", url).Msg("recording started")
	if err := stop(); err != nil {
		return nil, err
	}
	actions := rec.snapshot()
	r.logger.Info().Int("actions", len(actions)).Msg("recording stopped")
	return actions, nil
}

func (r *Recorder) bind(page playwright.Page, rec *recording) error {
	bindings := map[string]playwright.BindingCallFunction{
		"recordClick": func(source *playwright.BindingSource, args ...any) any {
			rec.click(argString(args, 0))
			return nil
		},
		"recordFill": func(source *playwright.BindingSource, args ...any) any {
			rec.fill(argString(args, 0), argString(args, 1))
			return nil
		},
		"recordPress": func(source *playwright.BindingSource, args ...any) any {
			rec.press(argString(args, 0), argString(args, 1))
			return nil
		},
		"recordScroll": func(source *playwright.BindingSource, args ...any) any {
			rec.scroll(argString(args, 0), argInt(args, 1))
			return nil
		},
	}
	for name, fn := range bindings {
		if err := page.ExposeBinding(name, fn); err != nil {
			return fmt.Errorf("expose %s: %w", name, err)
		}
	}
	return nil
}

// recording accumulates captured actions. Bindings fire on playwright's
// event goroutine, so appends are locked.
type recording struct {
	mu      sync.Mutex
	actions []action.Spec
}

func (r *recording) click(selector string) {
	if selector == "" {
		return
	}
	r.append(action.Spec{Action: action.Click, Target: selector})
}

func (r *recording) fill(selector, value string) {
	if selector == "" {
		return
	}
	r.append(action.Spec{Action: action.Fill, Target: selector, Value: value})
}

func (r *recording) press(selector, key string) {
	if selector == "" {
		return
	}
	r.append(action.Spec{Action: action.Press, Target: selector, Key: key})
}

func (r *recording) scroll(direction string, amount int) {
	r.append(action.Spec{Action: action.Scroll, Direction: direction, Amount: amount})
}

func (r *recording) append(spec action.Spec) {
	r.mu.Lock()
	r.actions = append(r.actions, spec)
	r.mu.Unlock()
}

func (r *recording) snapshot() []action.Spec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]action.Spec(nil), r.actions...)
}

func argString(args []any, i int) string {
	if i >= len(args) {
		return ""
	}
	s, _ := args[i].(string)
	return s
}

func argInt(args []any, i int) int {
	if i >= len(args) {
		return 0
	}
	switch v := args[i].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// captureScript runs in the page. Clicks walk up to the nearest interactive
// ancestor (same heuristic family as the scraper's element gate) so icon
// glyphs record their clickable parent. Text entry is captured on blur as a
// single fill rather than keystroke by keystroke; keydown records only an
// allow-list of control keys; scrolls are throttled and thresholded.
const captureScript = `(function() {
	function buildSelector(el) {
		if (!el || !el.tagName) return "";
		var s = el.tagName.toLowerCase();
		if (el.id && typeof el.id === "string") return s + "#" + el.id;
		var cn = el.className;
		if (cn) {
			var str = typeof cn === "string" ? cn : (cn.baseVal != null ? cn.baseVal : "");
			if (str && typeof str === "string" && str.indexOf("object") === -1)
				return s + "." + str.trim().split(/\s+/).filter(Boolean).join(".");
		}
		return s;
	}

	function getClickableElement(el) {
		var interactive = ["BUTTON", "A", "INPUT", "SELECT", "TEXTAREA"];
		var clickableRoles = ["button", "link", "option", "menuitem", "tab"];
		var n = el;
		while (n && n !== document.body) {
			var tag = n.tagName;
			var role = (n.getAttribute && n.getAttribute("role")) || "";
			var hasOnclick = n.onclick || (n.getAttribute && n.getAttribute("onclick"));
			var hasTabindex = n.tabIndex >= 0;
			var isRoleClickable = clickableRoles.indexOf(role.toLowerCase()) >= 0;
			if (interactive.indexOf(tag) >= 0 || isRoleClickable || hasOnclick || (hasTabindex && (tag === "DIV" || tag === "SPAN")))
				return n;
			n = n.parentElement;
		}
		return el;
	}

	document.addEventListener("click", function(e) {
		var clickable = getClickableElement(e.target);
		var sel = buildSelector(clickable);
		if (sel) window.recordClick(sel);
	}, true);

	document.addEventListener("blur", function(e) {
		var tag = (e.target.tagName || "").toLowerCase();
		if (tag !== "input" && tag !== "textarea" && tag !== "select") return;
		var sel = buildSelector(e.target);
		if (sel) window.recordFill(sel, e.target.value || "");
	}, true);

	var RECORD_KEYS = ["Enter", "Tab", "Escape", "ArrowUp", "ArrowDown", "ArrowLeft", "ArrowRight", " "];
	document.addEventListener("keydown", function(e) {
		if (RECORD_KEYS.indexOf(e.key) < 0) return;
		var active = document.activeElement;
		if (!active || active === document.body) return;
		var sel = buildSelector(active);
		if (sel) window.recordPress(sel, e.key === " " ? "Space" : e.key);
	}, true);

	var lastScrollY = window.scrollY;
	var lastScrollX = window.scrollX;
	var scrollThrottle = null;
	window.addEventListener("scroll", function() {
		if (scrollThrottle) return;
		scrollThrottle = setTimeout(function() {
			scrollThrottle = null;
			var dy = window.scrollY - lastScrollY;
			var dx = window.scrollX - lastScrollX;
			lastScrollY = window.scrollY;
			lastScrollX = window.scrollX;
			if (Math.abs(dy) >= 50) window.recordScroll(dy > 0 ? "down" : "up", Math.abs(dy));
			if (Math.abs(dx) >= 50) window.recordScroll(dx > 0 ? "right" : "left", Math.abs(dx));
		}, 300);
	}, { passive: true });
})();`
