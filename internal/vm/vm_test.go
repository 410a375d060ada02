package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/tinylang/tl/internal/config"
)

func newTestVM() (*VM, *bytes.Buffer) {
	machine := New(config.Default())
	var out bytes.Buffer
	machine.SetStdout(&out)
	return machine, &out
}

func runSource(t *testing.T, source string) (string, error) {
	t.Helper()
	machine, out := newTestVM()
	err := machine.Interpret("test.tl", source)
	return out.String(), err
}

func runExpect(t *testing.T, source, want string) {
	t.Helper()
	got, err := runSource(t, source)
	if err != nil {
		t.Fatalf("Interpret failed: %v", err)
	}
	if got != want {
		t.Errorf("output: got %q, want %q", got, want)
	}
}

func runExpectError(t *testing.T, source, wantSubstr string) {
	t.Helper()
	got, err := runSource(t, source)
	if err == nil {
		t.Fatalf("expected error containing %q, got output %q", wantSubstr, got)
	}
	if !strings.Contains(err.Error(), wantSubstr) {
		t.Errorf("error: got %q, want substring %q", err, wantSubstr)
	}
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"print(1 + 2);", "3\n"},
		{"print(10 - 4);", "6\n"},
		{"print(3 * 4);", "12\n"},
		{"print(10 / 4);", "2.5\n"},
		{"print(10 % 3);", "1\n"},
		{"print(-5);", "-5\n"},
		{"print(1 + 2 * 3);", "7\n"},
		{"print((1 + 2) * 3);", "9\n"},
		{"print(0.1 + 0.2 == 0.3);", "false\n"},
		{"print(\"foo\" + \"bar\");", "foobar\n"},
	}
	for _, tt := range tests {
		got, err := runSource(t, tt.source)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.source, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.source, got, tt.want)
		}
	}
}

func TestComparisons(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"print(1 < 2);", "true\n"},
		{"print(2 <= 2);", "true\n"},
		{"print(3 > 4);", "false\n"},
		{"print(4 >= 5);", "false\n"},
		{"print(\"a\" < \"b\");", "true\n"},
		{"print(1 == 1);", "true\n"},
		{"print(1 != 2);", "true\n"},
		{"print(nil == nil);", "true\n"},
		{"print(1 == \"1\");", "false\n"},
		{`print(toNumber("nan") == toNumber("nan"));`, "true\n"}, // NaN equals NaN
	}
	for _, tt := range tests {
		got, err := runSource(t, tt.source)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.source, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.source, got, tt.want)
		}
	}
}

func TestLogicalShortCircuit(t *testing.T) {
	// bump() has a visible side effect; && and || must skip it when
	// the left operand decides the result.
	runExpect(t, `
		var hits = 0;
		fn bump() { hits = hits + 1; return true; }
		var a = false && bump();
		var b = true || bump();
		print(a, b, hits);
	`, "false true 0\n")

	runExpect(t, `print(1 && 2);`, "2\n")
	runExpect(t, `print(nil || "fallback");`, "fallback\n")
}

func TestGlobalsAndAssignment(t *testing.T) {
	runExpect(t, `
		var x = 10;
		x = x + 5;
		print(x);
	`, "15\n")
}

func TestShadowing(t *testing.T) {
	runExpect(t, `
		let x = 1;
		{
			let x = 2;
			print(x);
		}
		print(x);
	`, "2\n1\n")
}

func TestScopeCleanup(t *testing.T) {
	machine, out := newTestVM()
	err := machine.Interpret("test.tl", `
		let a = "outer";
		{
			let b = "inner1";
			let c = "inner2";
		}
		print(a);
	`)
	if err != nil {
		t.Fatalf("Interpret failed: %v", err)
	}
	if got := out.String(); got != "outer\n" {
		t.Errorf("output: got %q, want %q", got, "outer\n")
	}
	if sp := len(machine.StackSnapshot()); sp != 0 {
		t.Errorf("operand stack not empty after run: %d slots", sp)
	}
}

func TestIfElse(t *testing.T) {
	runExpect(t, `
		if (1 < 2) { print("then"); } else { print("else"); }
		if (1 > 2) { print("then"); } else { print("else"); }
		if (false) { print("skipped"); }
	`, "then\nelse\n")
}

func TestWhileLoop(t *testing.T) {
	runExpect(t, `
		var i = 0;
		var sum = 0;
		while (i < 5) {
			i = i + 1;
			sum = sum + i;
		}
		print(sum);
	`, "15\n")
}

func TestForLoop(t *testing.T) {
	runExpect(t, `
		var sum = 0;
		for (let i = 0; i < 5; i = i + 1) {
			sum = sum + i;
		}
		print(sum);
	`, "10\n")
}

func TestBreakContinue(t *testing.T) {
	runExpect(t, `
		var out = "";
		for (let i = 0; i < 10; i = i + 1) {
			if (i % 2 == 0) { continue; }
			if (i > 6) { break; }
			out = out + toString(i);
		}
		print(out);
	`, "135\n")

	runExpect(t, `
		var i = 0;
		while (true) {
			i = i + 1;
			if (i >= 3) { break; }
		}
		print(i);
	`, "3\n")
}

func TestFunctionCalls(t *testing.T) {
	runExpect(t, `
		fn add(a, b) { return a + b; }
		print(add(2, 3));
	`, "5\n")

	runExpect(t, `
		fn greet() { print("hi"); }
		greet();
	`, "hi\n")

	runExpect(t, `
		fn noReturn() { let x = 1; }
		print(noReturn());
	`, "nil\n")
}

func TestRecursionFibonacci(t *testing.T) {
	runExpect(t, `
		fn fib(n) {
			if (n < 2) { return n; }
			return fib(n - 1) + fib(n - 2);
		}
		print(fib(10));
	`, "55\n")
}

func TestClosureCounter(t *testing.T) {
	runExpect(t, `
		fn make_counter() {
			let count = 0;
			return fn() {
				count = count + 1;
				return count;
			};
		}
		let c = make_counter();
		print(c());
		print(c());
	`, "1\n2\n")
}

func TestClosuresAreIndependent(t *testing.T) {
	runExpect(t, `
		fn make_counter() {
			let count = 0;
			return fn() {
				count = count + 1;
				return count;
			};
		}
		let a = make_counter();
		let b = make_counter();
		a();
		a();
		print(a(), b());
	`, "3 1\n")
}

func TestNestedClosureCapture(t *testing.T) {
	// Capture through two levels of nesting reaches the same cell.
	runExpect(t, `
		fn outer() {
			let x = "outer";
			fn middle() {
				fn inner() {
					return x;
				}
				return inner;
			}
			return middle();
		}
		print(outer()());
	`, "outer\n")
}

func TestClosedUpvalueSurvivesScope(t *testing.T) {
	runExpect(t, `
		var f = nil;
		{
			let local = "captured";
			f = fn() { return local; };
		}
		print(f());
	`, "captured\n")
}

func TestDivisionByZero(t *testing.T) {
	got, err := runSource(t, `print(1/0);`)
	if err == nil {
		t.Fatal("expected runtime error")
	}
	if !strings.Contains(err.Error(), "division by zero") {
		t.Errorf("error: got %q, want division by zero", err)
	}
	if got != "" {
		t.Errorf("expected no output, got %q", got)
	}
}

func TestModuloByZero(t *testing.T) {
	runExpectError(t, `print(5 % 0);`, "modulo by zero")
}

func TestTypeErrors(t *testing.T) {
	runExpectError(t, `print(1 + "a");`, "must be two numbers or two strings")
	runExpectError(t, `print(-"a");`, "must be a number")
	runExpectError(t, `print(1 < "a");`, "two numbers or two strings")
	runExpectError(t, `let x = 1; x();`, "can only call functions")
}

func TestUndefinedVariable(t *testing.T) {
	runExpectError(t, `print(missing);`, "undefined variable 'missing'")
	runExpectError(t, `missing = 1;`, "undefined variable 'missing'")
}

func TestArityMismatch(t *testing.T) {
	runExpectError(t, `
		fn two(a, b) { return a; }
		two(1);
	`, "expected 2 arguments but got 1")
}

func TestStackOverflow(t *testing.T) {
	runExpectError(t, `
		fn loop() { return loop(); }
		loop();
	`, "stack overflow")
}

func TestRuntimeErrorTrace(t *testing.T) {
	_, err := runSource(t, `
		fn inner() { return 1 / 0; }
		fn outer() { return inner(); }
		outer();
	`)
	if err == nil {
		t.Fatal("expected runtime error")
	}
	msg := err.Error()
	innerAt := strings.Index(msg, "<fn inner>")
	outerAt := strings.Index(msg, "<fn outer>")
	scriptAt := strings.Index(msg, "<script>")
	if innerAt < 0 || outerAt < 0 || scriptAt < 0 {
		t.Fatalf("trace missing frames: %q", msg)
	}
	if !(innerAt < outerAt && outerAt < scriptAt) {
		t.Errorf("trace not innermost-first: %q", msg)
	}
}

func TestVMReusableAfterRuntimeError(t *testing.T) {
	machine, out := newTestVM()
	if err := machine.Interpret("a.tl", `print(1/0);`); err == nil {
		t.Fatal("expected runtime error")
	}
	if err := machine.Interpret("b.tl", `print("still alive");`); err != nil {
		t.Fatalf("second Interpret failed: %v", err)
	}
	if got := out.String(); got != "still alive\n" {
		t.Errorf("output: got %q", got)
	}
}

func TestVMInstancesAreIsolated(t *testing.T) {
	a, aOut := newTestVM()
	b, bOut := newTestVM()

	if err := a.Interpret("a.tl", `var x = "from a";`); err != nil {
		t.Fatalf("a: %v", err)
	}
	if err := b.Interpret("b.tl", `print(x);`); err == nil {
		t.Error("expected undefined variable in second VM")
	}
	if err := a.Interpret("a2.tl", `print(x);`); err != nil {
		t.Fatalf("a2: %v", err)
	}
	if got := aOut.String(); got != "from a\n" {
		t.Errorf("a output: %q", got)
	}
	if got := bOut.String(); got != "" {
		t.Errorf("b output: %q", got)
	}
	if a.ID() == b.ID() {
		t.Error("VM ids should differ")
	}
}

func TestGlobalsPersistAcrossInterprets(t *testing.T) {
	machine, out := newTestVM()
	if err := machine.Interpret("1", `var counter = 41;`); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := machine.Interpret("2", `counter = counter + 1; print(counter);`); err != nil {
		t.Fatalf("second: %v", err)
	}
	if got := out.String(); got != "42\n" {
		t.Errorf("output: got %q", got)
	}
}

func TestPrintFormats(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"print(nil);", "nil\n"},
		{"print(true);", "true\n"},
		{"print(false);", "false\n"},
		{"print(42);", "42\n"},
		{"print(1.5);", "1.5\n"},
		{"print(\"text\");", "text\n"},
		{"print(1, \"two\", true);", "1 two true\n"},
		{"print 7;", "7\n"},
		{"fn f() {} print(f);", "<fn f>\n"},
		{`print(toNumber("nan"));`, "nan\n"},
		{`print(toNumber("-inf"));`, "-inf\n"},
	}
	for _, tt := range tests {
		got, err := runSource(t, tt.source)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.source, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.source, got, tt.want)
		}
	}
}

func TestBuiltins(t *testing.T) {
	runExpect(t, `print(len("hello"));`, "5\n")
	runExpect(t, `print(len(""));`, "0\n")
	runExpect(t, `print(toNumber("  42  ") + 1);`, "43\n")
	runExpect(t, `print(toNumber(true), toNumber(false));`, "1 0\n")
	runExpect(t, `print(toString(1.5) + "!");`, "1.5!\n")
	runExpect(t, `print(toString(nil));`, "nil\n")
	runExpect(t, `print(range(5));`, "0 1 2 3 4\n")
	runExpect(t, `print(range(0));`, "\n")
	runExpect(t, `assert(1 < 2); print("ok");`, "ok\n")
	runExpect(t, `print(clock() >= 0);`, "true\n")

	runExpectError(t, `assert(false);`, "assertion failed")
	runExpectError(t, `len(42);`, "must be a string")
	runExpectError(t, `toNumber("abc");`, `cannot convert "abc" to number`)
	runExpectError(t, `toNumber(nil);`, "cannot convert nil to number")
	runExpectError(t, `range(-1);`, "must not be negative")
	runExpectError(t, `len("a", "b");`, "expected 1 arguments but got 2")
}

func TestBuiltinsAreShadowable(t *testing.T) {
	runExpect(t, `
		var len = fn(s) { return "custom"; };
		print(len("abc"));
	`, "custom\n")
}

func TestIntrospection(t *testing.T) {
	machine, _ := newTestVM()
	if err := machine.Interpret("test.tl", `var x = 1; var y = "two";`); err != nil {
		t.Fatalf("Interpret failed: %v", err)
	}

	if machine.InstructionCount() == 0 {
		t.Error("InstructionCount should be non-zero after a run")
	}
	if machine.MemoryUsage() <= 0 {
		t.Error("MemoryUsage should be positive while objects live")
	}

	globals := machine.GlobalsSnapshot()
	var names []string
	for _, g := range globals {
		names = append(names, g.Name)
	}
	// Builtins come first, then script globals in definition order.
	joined := strings.Join(names, ",")
	if !strings.HasSuffix(joined, "x,y") {
		t.Errorf("globals snapshot order: %v", names)
	}
}
