/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package model

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/ownerfi/dealflow"
	"github.com/ownerfi/dealflow/model"
)

var brandPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

func positiveWhenSet(value interface{}) error {
	v, ok := value.(*float64)
	if !ok || v == nil {
		return nil
	}
	if *v <= 0 {
		return errors.New("must be greater than zero")
	}
	return nil
}

func (l *ClassifyListing) ValidateClassifyListing() error {
	return validation.ValidateStruct(l,
		validation.Field(&l.Price, validation.Min(0.0)),
		validation.Field(&l.Estimate, validation.By(positiveWhenSet)),
	)
}

func (l *CreateListing) ValidateCreateListing() error {
	return validation.ValidateStruct(l,
		validation.Field(&l.ListingID, validation.Required, validation.Length(1, 255)),
		validation.Field(&l.Price, validation.Min(0.0)),
		validation.Field(&l.Estimate, validation.By(positiveWhenSet)),
		validation.Field(&l.State, validation.Length(0, 2)),
	)
}

func (l *CreateListings) ValidateCreateListings() error {
	if len(l.Listings) == 0 {
		return errors.New("listings: cannot be blank")
	}
	for i := range l.Listings {
		if err := l.Listings[i].ValidateCreateListing(); err != nil {
			return validation.Errors{"listings": validation.Errors{strconv.Itoa(i): err}}
		}
	}
	return nil
}

func (w *CreateWorkflow) ValidateCreateWorkflow() error {
	return validation.ValidateStruct(w,
		validation.Field(&w.Brand, validation.Required, validation.Match(brandPattern)),
		validation.Field(&w.SourceArticleID, validation.Required),
	)
}

func (j *DispatchJob) ValidateDispatchJob() error {
	return validation.ValidateStruct(j,
		validation.Field(&j.JobID, validation.Required),
	)
}

func (c *Callback) ValidateCallback() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Brand, validation.Required, validation.Match(brandPattern)),
		validation.Field(&c.JobID, validation.Required),
		validation.Field(&c.Status, validation.Required),
		validation.Field(&c.OutputURL, validation.When(c.OutputURL != "", validation.By(func(value interface{}) error {
			s, _ := value.(string)
			if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
				return errors.New("must be an http(s) URL")
			}
			return nil
		}))),
	)
}

func (l *CreateListing) ToListing() *model.Listing {
	return &model.Listing{
		ListingID:   l.ListingID,
		Source:      l.Source,
		Address:     l.Address,
		City:        l.City,
		State:       strings.ToUpper(l.State),
		ZipCode:     l.ZipCode,
		Price:       l.Price,
		Estimate:    l.Estimate,
		Description: l.Description,
		URL:         l.URL,
		MetaData:    l.MetaData,
	}
}

func (c *Callback) ToCallback() dealflow.Callback {
	return dealflow.Callback{Brand: c.Brand, JobID: c.JobID, Status: c.Status, OutputURL: c.OutputURL, Error: c.Error}
}
