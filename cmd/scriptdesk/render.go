package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goliatone/go-scriptdesk/access"
	"github.com/goliatone/go-scriptdesk/app"
	"github.com/goliatone/go-scriptdesk/execution"
	"github.com/goliatone/go-scriptdesk/form"
	"github.com/goliatone/go-scriptdesk/script"
)

// Env is bound into every command's Run method.
type Env struct {
	Ctx   context.Context
	State *app.State
	Out   io.Writer
	JSON  bool
}

// emit writes v as indented JSON in json mode and calls text otherwise.
func (e *Env) emit(v any, text func() error) error {
	if !e.JSON {
		return text()
	}
	switch t := v.(type) {
	case script.Definition:
		v = newScriptView(t)
	case []script.Definition:
		views := make([]scriptView, 0, len(t))
		for _, def := range t {
			views = append(views, newScriptView(def))
		}
		v = views
	}
	enc := json.NewEncoder(e.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type scriptView struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Type        string        `json:"type"`
	Tags        []string      `json:"tags,omitempty"`
	Sections    []sectionView `json:"sections,omitempty"`
}

type sectionView struct {
	ID     string      `json:"id"`
	Title  string      `json:"title"`
	Inputs []inputView `json:"inputs"`
}

type inputView struct {
	Name     string          `json:"name"`
	Label    string          `json:"label,omitempty"`
	Kind     string          `json:"kind"`
	Type     string          `json:"type"`
	Required bool            `json:"required"`
	Options  []string        `json:"options,omitempty"`
	Pattern  string          `json:"pattern,omitempty"`
	Columns  []script.Column `json:"columns,omitempty"`
}

func newScriptView(def script.Definition) scriptView {
	v := scriptView{ID: def.ID, Name: def.Name, Description: def.Description, Type: def.Type, Tags: def.Tags}
	for _, sec := range def.Sections {
		sv := sectionView{ID: sec.ID, Title: sec.Title}
		for _, in := range sec.Inputs {
			iv := inputView{
				Name:     in.Name,
				Label:    in.Label,
				Kind:     in.Kind().String(),
				Type:     string(in.Type),
				Required: in.Required,
				Options:  in.Options,
				Columns:  in.Columns,
			}
			if in.Pattern != nil {
				iv.Pattern = in.Pattern.String()
			}
			sv.Inputs = append(sv.Inputs, iv)
		}
		v.Sections = append(v.Sections, sv)
	}
	return v
}

func renderScripts(w io.Writer, defs []script.Definition) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tTAGS")
	for _, def := range defs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", def.ID, def.Name, def.Type, strings.Join(def.Tags, ","))
	}
	return tw.Flush()
}

func renderDefinition(w io.Writer, def script.Definition) error {
	fmt.Fprintf(w, "%s  %s (%s)\n", def.ID, def.Name, def.Type)
	if def.Description != "" {
		fmt.Fprintf(w, "%s\n", def.Description)
	}
	for i, sec := range def.Sections {
		fmt.Fprintf(w, "\n[%d/%d] %s\n", i+1, len(def.Sections), sec.Title)
		for _, in := range sec.Inputs {
			req := ""
			if in.Required {
				req = " *"
			}
			fmt.Fprintf(w, "  %s%s  %s, %s", in.Name, req, in.Kind(), in.Type)
			if len(in.Options) > 0 {
				fmt.Fprintf(w, "  [%s]", strings.Join(in.Options, "|"))
			}
			if in.Label != "" {
				fmt.Fprintf(w, "  %q", in.Label)
			}
			fmt.Fprintln(w)
			for _, col := range in.Columns {
				req := ""
				if col.Required {
					req = " *"
				}
				fmt.Fprintf(w, "      %s%s  %s", col.Key, req, col.Type)
				if len(col.Options) > 0 {
					fmt.Fprintf(w, "  [%s]", strings.Join(col.Options, "|"))
				}
				fmt.Fprintln(w)
			}
		}
	}
	return nil
}

func renderRecords(w io.Writer, recs []execution.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tSCRIPT\tNAME\tREQUESTED BY\tSTARTED")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Status, r.ScriptName, r.ExecutionName, r.RequestedBy, r.StartTime.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func renderRecord(w io.Writer, r execution.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)
	row := func(label, value string) {
		if value != "" {
			fmt.Fprintf(tw, "%s:\t%s\n", label, value)
		}
	}
	row("ID", r.ID)
	row("Script", fmt.Sprintf("%s (%s, %s)", r.ScriptName, r.ScriptID, r.ScriptType))
	row("Name", r.ExecutionName)
	row("Status", string(r.Status))
	row("Requested by", r.RequestedBy)
	row("Approved by", r.ApprovedBy)
	row("Rejected by", r.RejectedBy)
	row("Reason", r.RejectionReason)
	row("Started", r.StartTime.Local().Format(time.DateTime))
	if r.EndTime != nil {
		row("Ended", r.EndTime.Local().Format(time.DateTime))
	}
	row("Result", r.Result)

	names := make([]string, 0, len(r.Inputs))
	for name := range r.Inputs {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		row("  "+name, r.Inputs[name].String())
	}
	return tw.Flush()
}

func renderUsers(w io.Writer, currentID string, users ...access.User) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tNAME\tROLE\tPERMISSIONS")
	for _, u := range users {
		mark := ""
		if u.ID == currentID {
			mark = "*"
		}
		perms := make([]string, 0, len(u.Permissions))
		for _, p := range u.Permissions {
			perms = append(perms, string(p))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", mark, u.ID, u.Name, u.Role, strings.Join(perms, ","))
	}
	return tw.Flush()
}

func renderFormErrors(w io.Writer, f *form.Form) {
	def := f.Definition()
	for _, in := range def.Inputs() {
		if msg := f.FieldError(in.Name); msg != "" {
			fmt.Fprintf(w, "%s: %s\n", in.Name, msg)
		}
		for i, msg := range f.RowErrors(in.Name) {
			if msg != "" {
				fmt.Fprintf(w, "%s row %d: %s\n", in.Name, i+1, msg)
			}
		}
	}
	for _, sec := range def.Sections {
		if msg := f.SectionError(sec.ID); msg != "" {
			fmt.Fprintf(w, "section %s: %s\n", sec.ID, msg)
		}
	}
	if strings.TrimSpace(f.ExecutionName()) == "" {
		fmt.Fprintln(w, "execution name is required")
	}
}
