package main

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/myrjola/runplan/internal/program"
	"github.com/myrjola/runplan/internal/ptr"
)

type personalBestView struct {
	Distance string // URL-safe distance ID, e.g. "half-marathon"
	Name     string // Display name, e.g. "Half marathon"
	PreTime  string
	PostTime string
}

type profileTemplateData struct {
	BaseTemplateData
	VO2Max        float64
	HRMax         int
	LT1HR         int
	LT2HR         int
	PersonalBests []personalBestView
}

func distanceName(distance string) string {
	name := strings.ReplaceAll(distance, "-", " ")
	return strings.ToUpper(name[:1]) + name[1:]
}

func toPersonalBestViews(bests []program.PersonalBest) []personalBestView {
	recorded := make(map[string]program.PersonalBest, len(bests))
	for _, best := range bests {
		recorded[best.Distance] = best
	}

	// Every tracked distance gets a row even when nothing is recorded yet.
	views := make([]personalBestView, 0, len(program.Distances))
	for _, distance := range program.Distances {
		views = append(views, personalBestView{
			Distance: distance,
			Name:     distanceName(distance),
			PreTime:  recorded[distance].PreTime,
			PostTime: recorded[distance].PostTime,
		})
	}
	return views
}

func (app *application) profileGET(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profile, err := app.programService.Profile(ctx)
	if err != nil {
		app.serverError(w, r, fmt.Errorf("get profile: %w", err))
		return
	}
	bests, err := app.programService.PersonalBests(ctx)
	if err != nil {
		app.serverError(w, r, fmt.Errorf("get personal bests: %w", err))
		return
	}

	data := profileTemplateData{
		BaseTemplateData: newBaseTemplateData(r),
		VO2Max:           profile.VO2Max,
		HRMax:            profile.HRMax,
		LT1HR:            profile.LT1HR,
		LT2HR:            profile.LT2HR,
		PersonalBests:    toPersonalBestViews(bests),
	}

	app.render(w, r, http.StatusOK, "profile", data)
}

func parseProfileForm(r *http.Request) (program.ProfileUpdate, error) {
	var update program.ProfileUpdate

	if value := r.Form.Get("vo2_max"); value != "" {
		vo2Max, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return update, fmt.Errorf("parse vo2 max: %w", err)
		}
		update.VO2Max = ptr.Ref(vo2Max)
	}

	heartRates := []struct {
		field  string
		target **int
	}{
		{field: "hr_max", target: &update.HRMax},
		{field: "lt1_hr", target: &update.LT1HR},
		{field: "lt2_hr", target: &update.LT2HR},
	}
	for _, hr := range heartRates {
		value := r.Form.Get(hr.field)
		if value == "" {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return update, fmt.Errorf("parse %s: %w", hr.field, err)
		}
		*hr.target = ptr.Ref(parsed)
	}

	return update, nil
}

func parsePersonalBestsForm(r *http.Request) []program.PersonalBest {
	bests := make([]program.PersonalBest, 0, len(program.Distances))
	for _, distance := range program.Distances {
		pre := r.Form.Get(fmt.Sprintf("pb_%s_pre", distance))
		post := r.Form.Get(fmt.Sprintf("pb_%s_post", distance))
		if pre == "" && post == "" {
			continue
		}
		bests = append(bests, program.PersonalBest{
			Distance: distance,
			PreTime:  pre,
			PostTime: post,
		})
	}
	return bests
}

func (app *application) profilePOST(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		app.serverError(w, r, fmt.Errorf("parse form: %w", err))
		return
	}

	update, err := parseProfileForm(r)
	if err != nil {
		app.serverError(w, r, fmt.Errorf("parse profile form: %w", err))
		return
	}

	ctx := r.Context()
	if err = app.programService.UpdateProfile(ctx, update); err != nil {
		app.serverError(w, r, fmt.Errorf("update profile: %w", err))
		return
	}
	if err = app.programService.UpdatePersonalBests(ctx, parsePersonalBestsForm(r)); err != nil {
		app.serverError(w, r, fmt.Errorf("update personal bests: %w", err))
		return
	}

	redirect(w, r, "/profile")
}
