package main

import (
	"strings"
	"testing"
)

func TestReadValuesJSON(t *testing.T) {
	got, err := readValues(strings.NewReader(`[["alice","1"],["bob","2"]]`))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1][0] != "bob" || got[1][1] != "2" {
		t.Errorf("unexpected values: %v", got)
	}
}

func TestReadValuesLines(t *testing.T) {
	got, err := readValues(strings.NewReader("car\n\n case \nbat\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[1][0] != "case" {
		t.Errorf("unexpected values: %v", got)
	}
}

func TestReadValuesEmpty(t *testing.T) {
	if _, err := readValues(strings.NewReader("  \n")); err == nil {
		t.Error("expected error for empty input")
	}
}
