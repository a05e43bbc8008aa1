package depspec

import (
	"reflect"
	"testing"

	"github.com/matzehuels/pkgreuse/pkg/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Spec
		wantErr bool
	}{
		{"left-pad", Spec{Name: "left-pad"}, false},
		{"react@17.0.2", Spec{Name: "react", Version: "17.0.2"}, false},
		{"@babel/core", Spec{Name: "@babel/core"}, false},
		{"@babel/core@7.24.0", Spec{Name: "@babel/core", Version: "7.24.0"}, false},
		{"  lodash  ", Spec{Name: "lodash"}, false},

		{"", Spec{}, true},
		{"react@", Spec{}, true},
		{"../etc@1.0.0", Spec{}, true},
		{"@scope", Spec{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, errors.ErrCodeInvalidPackage) {
					t.Errorf("Parse(%q) code = %v, want %v", tt.in, errors.GetCode(err), errors.ErrCodeInvalidPackage)
				}
				return
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseAllDeduplicates(t *testing.T) {
	specs, err := ParseAll([]string{"left-pad", "react@17.0.2", "left-pad@1.0.0"})
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	want := []Spec{{Name: "left-pad"}, {Name: "react", Version: "17.0.2"}}
	if !reflect.DeepEqual(specs, want) {
		t.Errorf("ParseAll = %+v, want %+v", specs, want)
	}

	if _, err := ParseAll([]string{"ok", "bad//name"}); err == nil {
		t.Error("ParseAll should fail on an invalid name")
	}
}

func TestFromDependencies(t *testing.T) {
	got := FromDependencies(map[string]string{
		"react":    "17.0.2",
		"left-pad": "^1.3.0",
		"lodash":   "~4.17.0",
		"empty":    "",
	})
	want := []Spec{
		{Name: "empty"},
		{Name: "left-pad"},
		{Name: "lodash"},
		{Name: "react", Version: "17.0.2"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FromDependencies = %+v, want %+v", got, want)
	}
}

func TestAccepts(t *testing.T) {
	pinned := Spec{Name: "react", Version: "17.0.2"}
	if !pinned.Accepts("17.0.2") {
		t.Error("pinned spec should accept its exact version")
	}
	if pinned.Accepts("16.0.0") {
		t.Error("pinned spec should reject other versions")
	}
	if pinned.Accepts("17.0.2-rc.1") {
		t.Error("pinned spec should reject prerelease of the same base")
	}

	free := Spec{Name: "react"}
	if !free.Accepts("16.0.0") || !free.Accepts("anything") {
		t.Error("unconstrained spec should accept any version")
	}
}

func TestStrings(t *testing.T) {
	specs := []Spec{{Name: "unknown-pkg"}, {Name: "@scope/x", Version: "1.0.0"}}
	got := Strings(specs)
	want := []string{"unknown-pkg", "@scope/x@1.0.0"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Strings = %v, want %v", got, want)
	}
}
