package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/ebusctl/internal/protocol"
	"github.com/danmuck/ebusctl/internal/protocol/datafield"
	"github.com/danmuck/ebusctl/internal/protocol/message"
	"github.com/danmuck/ebusctl/internal/protocol/symbol"
	"github.com/danmuck/ebusctl/internal/testutil/testlog"
)

const templatesCSV = `# name,type,divisor/values,unit,comment
temp,D2C,,°C,temperature
onoff,UCH,0=off;1=on,,switch
broken,NOPE
`

const messagesCSV = `# type,class,name,comment,QQ,ZZ,PBSB,ID,fields...
*r,heating,,,,15,b509,0d
*w,heating,,,,15,b509,0e

r1,heating,flowtemp,Flow temperature,,,,2800,temp,s,temp,,,
w,heating,flowtemp,Flow temperature,,,,2800,temp,m,temp,,,
r,heating,pump,,,,,2900,pump,,onoff,,,
u,,outsidetemp,,10,fe,0701,,temp,m,temp,,,
r,heating,badsource,,12,,,,
r,heating,flowtemp,duplicate,,,,2801,temp,,temp
r,heating,unknowntype,,,,,2a00,v,,NOPE
`

func TestReadTemplatesSkipsBadRows(t *testing.T) {
	testlog.Start(t)
	tmpl := datafield.NewTemplates()
	report, err := ReadTemplates(strings.NewReader(templatesCSV), "_templates.csv", tmpl)
	if err != nil {
		t.Fatalf("read templates: %v", err)
	}
	if report.Rows != 3 || report.Loaded != 2 || len(report.Skipped) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Skipped[0].Line != 4 {
		t.Fatalf("expected skipped row on line 4, got %d", report.Skipped[0].Line)
	}
	if !errors.Is(report.Err(), protocol.ErrMalformedDefinition) {
		t.Fatalf("expected malformed definition in report, got %v", report.Err())
	}
	if _, ok := tmpl.Get("onoff"); !ok {
		t.Fatalf("template onoff missing")
	}
}

func TestReadMessages(t *testing.T) {
	testlog.Start(t)
	tmpl := datafield.NewTemplates()
	if _, err := ReadTemplates(strings.NewReader(templatesCSV), "_templates.csv", tmpl); err != nil {
		t.Fatalf("read templates: %v", err)
	}
	reg := message.NewRegistry()
	report, err := ReadMessages(strings.NewReader(messagesCSV), "heating.csv", tmpl, reg)
	if err != nil {
		t.Fatalf("read messages: %v", err)
	}
	if report.Defaults != 2 || report.Loaded != 4 || len(report.Skipped) != 3 {
		t.Fatalf("unexpected report: %+v (%v)", report, report.Err())
	}
	if !errors.Is(report.Err(), protocol.ErrDuplicateKey) || !errors.Is(report.Err(), protocol.ErrMalformedDefinition) {
		t.Fatalf("expected duplicate and malformed errors, got %v", report.Err())
	}
	if reg.Len() != 4 {
		t.Fatalf("expected 4 registered messages, got %d", reg.Len())
	}

	get, err := reg.Find("heating", "flowtemp", false)
	if err != nil {
		t.Fatalf("find flowtemp: %v", err)
	}
	if get.PollPriority() != 1 || get.DstAddress() != 0x15 {
		t.Fatalf("unexpected flowtemp: %s", get)
	}
	set, err := reg.Find("heating", "flowtemp", true)
	if err != nil {
		t.Fatalf("find flowtemp set: %v", err)
	}
	master, err := set.PrepareMaster(0x31, "55", ';')
	if err != nil {
		t.Fatalf("prepare master: %v", err)
	}
	if master.Hex() != "3115b509050e28007003" {
		t.Fatalf("unexpected master %s", master.Hex())
	}
	if found, err := reg.FindMaster(master); err != nil || found != set {
		t.Fatalf("prepared master not resolved back to its message: %v %v", found, err)
	}

	passive, err := reg.FindMaster(symbol.New(0x10, 0xFE, 0x07, 0x01, 0x02, 0x50, 0x00))
	if err != nil || passive.Name() != "outsidetemp" || !passive.IsPassive() {
		t.Fatalf("passive lookup: %v %v", passive, err)
	}
	out, err := passive.Decode(datafield.PartMaster, symbol.New(0x10, 0xFE, 0x07, 0x01, 0x02, 0x50, 0x00), ';')
	if err != nil || out != "5" {
		t.Fatalf("decode passive: %q %v", out, err)
	}
}

func TestLoadDir(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write(TemplatesFile, templatesCSV)
	write("b_heating.csv", messagesCSV)
	write("a_dhw.csv", "r,dhw,temp,,,25,b509,0d4000,temp,,temp\n")
	write("notes.txt", "ignored")
	if err := os.Mkdir(filepath.Join(dir, "sub.csv"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	tmpl := datafield.NewTemplates()
	reg := message.NewRegistry()
	reports, err := Load([]string{dir}, tmpl, reg)
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("expected 3 reports, got %d", len(reports))
	}
	if filepath.Base(reports[0].Path) != TemplatesFile || filepath.Base(reports[1].Path) != "a_dhw.csv" {
		t.Fatalf("unexpected load order: %s, %s", reports[0].Path, reports[1].Path)
	}
	if _, err := reg.Find("dhw", "temp", false); err != nil {
		t.Fatalf("dhw temp not loaded: %v", err)
	}
	if reg.Len() != 5 {
		t.Fatalf("expected 5 messages, got %d", reg.Len())
	}
}

func TestLoadMissingPath(t *testing.T) {
	testlog.Start(t)
	_, err := Load([]string{filepath.Join(t.TempDir(), "missing.csv")}, datafield.NewTemplates(), message.NewRegistry())
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
