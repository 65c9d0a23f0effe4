package gsm

import "context"

// runGroup executes steps in order against a, as a single command group:
// one public request expanding into a scripted sequence of AT
// sub-commands. The step that fails aborts the group and its error is
// returned immediately; info lines from every successful step are
// accumulated and returned together, in step order.
//
// This is the producer-side "command state machine" of the spec,
// collapsed to its essential behavior: SEND_SUB -> AWAIT -> DECIDE_NEXT
// is exactly "issue the next step, and stop on the first error", since
// none of this engine's scripts need to branch on the content of a
// response to pick the next step.
func runGroup(ctx context.Context, send func(ctx context.Context, cmd string) ([]string, error), steps []string) ([]string, error) {
	var all []string
	for _, step := range steps {
		info, err := send(ctx, step)
		all = append(all, info...)
		if err != nil {
			return all, err
		}
	}
	return all, nil
}
