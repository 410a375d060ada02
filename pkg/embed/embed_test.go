package tinylang

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestEvalAndOutput(t *testing.T) {
	v := New()
	var out bytes.Buffer
	v.SetOutput(&out)

	if err := v.Eval("test", `print("hello from script");`); err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if got := out.String(); got != "hello from script\n" {
		t.Errorf("output: %q", got)
	}
}

func TestBindValues(t *testing.T) {
	v := New()
	var out bytes.Buffer
	v.SetOutput(&out)

	if err := v.Bind("answer", 42); err != nil {
		t.Fatal(err)
	}
	if err := v.Bind("greeting", "hi"); err != nil {
		t.Fatal(err)
	}
	if err := v.Bind("flag", true); err != nil {
		t.Fatal(err)
	}
	if err := v.Bind("nothing", nil); err != nil {
		t.Fatal(err)
	}

	if err := v.Eval("test", `print(answer + 1, greeting, flag, nothing);`); err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if got := out.String(); got != "43 hi true nil\n" {
		t.Errorf("output: %q", got)
	}
}

func TestBindRejectsUnsupported(t *testing.T) {
	v := New()
	if err := v.Bind("ch", make(chan int)); err == nil {
		t.Error("expected an error for a channel value")
	}
}

func TestBindFunction(t *testing.T) {
	v := New()
	var out bytes.Buffer
	v.SetOutput(&out)

	err := v.Bind("double", func(n float64) float64 { return n * 2 })
	if err != nil {
		t.Fatal(err)
	}
	err = v.Bind("join", func(a, b string) string { return a + "-" + b })
	if err != nil {
		t.Fatal(err)
	}

	if err := v.Eval("test", `print(double(21), join("a", "b"));`); err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if got := out.String(); got != "42 a-b\n" {
		t.Errorf("output: %q", got)
	}
}

func TestBoundFunctionErrorsSurface(t *testing.T) {
	v := New()
	err := v.Bind("fail", func() (float64, error) {
		return 0, errors.New("host failure")
	})
	if err != nil {
		t.Fatal(err)
	}

	evalErr := v.Eval("test", `fail();`)
	if evalErr == nil || !strings.Contains(evalErr.Error(), "host failure") {
		t.Errorf("Eval: got %v, want host failure", evalErr)
	}
}

func TestBoundFunctionArgumentTypeChecked(t *testing.T) {
	v := New()
	if err := v.Bind("twice", func(n float64) float64 { return 2 * n }); err != nil {
		t.Fatal(err)
	}
	err := v.Eval("test", `twice("nope");`)
	if err == nil || !strings.Contains(err.Error(), "expected number") {
		t.Errorf("Eval: got %v, want a conversion error", err)
	}
}

func TestGlobalReadback(t *testing.T) {
	v := New()
	if err := v.Eval("test", `var x = 6 * 7; var s = "txt"; var b = true; var n = nil;`); err != nil {
		t.Fatal(err)
	}

	if got, ok := v.Global("x"); !ok || got != 42.0 {
		t.Errorf("x: got %v (%v)", got, ok)
	}
	if got, ok := v.Global("s"); !ok || got != "txt" {
		t.Errorf("s: got %v (%v)", got, ok)
	}
	if got, ok := v.Global("b"); !ok || got != true {
		t.Errorf("b: got %v (%v)", got, ok)
	}
	if got, ok := v.Global("n"); !ok || got != nil {
		t.Errorf("n: got %v (%v)", got, ok)
	}
	if _, ok := v.Global("missing"); ok {
		t.Error("missing global reported as bound")
	}
}

func TestGlobalsPersistAcrossEvals(t *testing.T) {
	v := New()
	if err := v.Eval("a", `var counter = 1;`); err != nil {
		t.Fatal(err)
	}
	if err := v.Eval("b", `counter = counter + 1;`); err != nil {
		t.Fatal(err)
	}
	if got, ok := v.Global("counter"); !ok || got != 2.0 {
		t.Errorf("counter: got %v (%v)", got, ok)
	}
}

func TestUnbind(t *testing.T) {
	v := New()
	if err := v.Bind("answer", 42); err != nil {
		t.Fatal(err)
	}
	if !v.Unbind("answer") {
		t.Error("Unbind reported answer as unbound")
	}
	if _, ok := v.Global("answer"); ok {
		t.Error("answer still readable after Unbind")
	}
	if v.Unbind("answer") {
		t.Error("second Unbind reported answer as bound")
	}

	err := v.Eval("test", `print(answer);`)
	if err == nil || !strings.Contains(err.Error(), "undefined variable 'answer'") {
		t.Errorf("Eval: got %v, want undefined variable", err)
	}
}
