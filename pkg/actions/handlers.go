package actions

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/serverkit/serverkit/pkg/archive"
	"github.com/serverkit/serverkit/pkg/expr"
	"github.com/serverkit/serverkit/pkg/faults"
	"github.com/serverkit/serverkit/pkg/manifest"
)

// evalTemplate renders an action parameter, wrapping evaluator faults
// with their caret block.
func evalTemplate(c *Context, tmpl manifest.TemplateString) (string, error) {
	out, err := expr.EvalTemplate(tmpl.String(), c.Bindings())
	if err != nil {
		return "", faults.NewExpression(err, "evaluating %q:\n%s", tmpl, err.CaretBlock())
	}
	return out, nil
}

// renameHandler renames the primary file. A relative target stays in
// the primary's directory; an existing file at the target is replaced.
func renameHandler(c *Context, act manifest.Action) error {
	a, ok := act.(*manifest.RenameAction)
	if !ok {
		return fmt.Errorf("rename handler received a %s action", act.ActionType())
	}
	primary, err := c.Download.Primary()
	if err != nil {
		return err
	}
	target, err := evalTemplate(c, a.To)
	if err != nil {
		return err
	}
	if target == "" {
		return fmt.Errorf("rename target evaluated to an empty string")
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(primary), target)
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing existing %s: %w", target, err)
	}
	if err := os.Rename(primary, target); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", primary, target, err)
	}
	c.Log.Debugf("renamed %s to %s", filepath.Base(primary), filepath.Base(target))
	c.Download.SetPrimary(target)
	return nil
}

// unzipHandler extracts the primary file into the templated folder, or
// into the primary's own directory when no folder is given. Extracted
// files join the download's file list.
func unzipHandler(c *Context, act manifest.Action) error {
	a, ok := act.(*manifest.UnzipAction)
	if !ok {
		return fmt.Errorf("unzip handler received a %s action", act.ActionType())
	}
	primary, err := c.Download.Primary()
	if err != nil {
		return err
	}
	folder := filepath.Dir(primary)
	if a.Folder != "" {
		folder, err = evalTemplate(c, a.Folder)
		if err != nil {
			return err
		}
		if !filepath.IsAbs(folder) {
			folder = filepath.Join(c.Env.ServerRoot, folder)
		}
	}
	extracted, err := archive.ExtractZip(primary, folder, nil)
	if err != nil {
		return err
	}
	c.Log.Debugf("extracted %d files from %s into %s", len(extracted), filepath.Base(primary), folder)
	c.Download.Files = append(c.Download.Files, extracted...)
	return nil
}

// dummyHandler evaluates an expression and logs the result. Used for
// diagnosing manifests.
func dummyHandler(c *Context, act manifest.Action) error {
	a, ok := act.(*manifest.DummyAction)
	if !ok {
		return fmt.Errorf("dummy handler received a %s action", act.ActionType())
	}
	v, err := expr.Eval(a.Expr, c.Bindings())
	if err != nil {
		return faults.NewExpression(err, "evaluating %q:\n%s", a.Expr, err.CaretBlock())
	}
	c.Log.Infof("%s = %s", a.Expr, expr.Stringify(v))
	return nil
}
