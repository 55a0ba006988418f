package util

import (
	"reflect"
	"testing"
	"time"
)

func TestGetters(t *testing.T) {
	t.Setenv("APPFLOW_T_INT", "7")
	t.Setenv("APPFLOW_T_BAD_INT", "seven")
	t.Setenv("APPFLOW_T_DUR", "250ms")
	t.Setenv("APPFLOW_T_DUR_MS", "1500")
	t.Setenv("APPFLOW_T_BOOL", "yes")
	t.Setenv("APPFLOW_T_CSV", " a, ,b ,c")

	if got := GetInt("APPFLOW_T_INT", 1); got != 7 {
		t.Fatalf("GetInt=%d want=7", got)
	}
	if got := GetInt("APPFLOW_T_BAD_INT", 3); got != 3 {
		t.Fatalf("GetInt(bad)=%d want=3", got)
	}
	if got := GetInt("APPFLOW_T_MISSING", 4); got != 4 {
		t.Fatalf("GetInt(missing)=%d want=4", got)
	}
	if got := GetDuration("APPFLOW_T_DUR", time.Second); got != 250*time.Millisecond {
		t.Fatalf("GetDuration=%v want=250ms", got)
	}
	if got := GetDuration("APPFLOW_T_DUR_MS", time.Second); got != 1500*time.Millisecond {
		t.Fatalf("GetDuration(ms)=%v want=1.5s", got)
	}
	if !GetBool("APPFLOW_T_BOOL", false) {
		t.Fatal("GetBool=false want=true")
	}
	if got := GetCSV("APPFLOW_T_CSV", nil); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("GetCSV=%v", got)
	}
	if got := GetString("APPFLOW_T_MISSING", "def"); got != "def" {
		t.Fatalf("GetString=%q want=def", got)
	}
}
