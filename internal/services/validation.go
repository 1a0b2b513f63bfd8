package services

import (
	"net/mail"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/soaringjerry/Footprint/internal/models"
)

const minPasswordLen = 6

// AllowedAttachmentExts are the bill formats accepted for upload.
var AllowedAttachmentExts = []string{".pdf", ".doc", ".docx", ".jpg", ".png"}

type fieldErrors []string

func (f *fieldErrors) require(field, v string) {
	if strings.TrimSpace(v) == "" {
		*f = append(*f, field)
	}
}

func (f *fieldErrors) check(field string, ok bool) {
	if !ok {
		*f = append(*f, field)
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return NewValidationError(f...)
}

func validEmail(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	addr, err := mail.ParseAddress(v)
	return err == nil && addr.Address == v && strings.Contains(v[strings.LastIndex(v, "@"):], ".")
}

func validateCredentials(f *fieldErrors, email, password string) {
	f.check("email", validEmail(email))
	f.check("password", len(password) >= minPasswordLen)
}

func validateAddress(f *fieldErrors, prefix string, a models.Address) {
	f.require(prefix+".full_address", a.FullAddress)
	f.require(prefix+".region", a.Region)
}

// DaysInMonth returns the number of days of month in year.
func DaysInMonth(month, year int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// validDateOfBirth accepts dates from 1900 up to now's year whose day exists
// in the given month.
func validDateOfBirth(d models.DateOfBirth, now time.Time) bool {
	day, err1 := strconv.Atoi(strings.TrimSpace(d.Day))
	month, err2 := strconv.Atoi(strings.TrimSpace(d.Month))
	year, err3 := strconv.Atoi(strings.TrimSpace(d.Year))
	if err1 != nil || err2 != nil || err3 != nil {
		return false
	}
	if year < 1900 || year > now.Year() || month < 1 || month > 12 {
		return false
	}
	return day >= 1 && day <= DaysInMonth(month, year)
}

func validateIndividual(ind models.Individual, now time.Time) fieldErrors {
	var f fieldErrors
	f.require("full_name", ind.FullName)
	f.check("date_of_birth", validDateOfBirth(ind.DateOfBirth, now))
	f.require("national_id", ind.NationalID)
	validateAddress(&f, "address", ind.Address)
	f.require("phone", ind.Phone)
	for i, dep := range ind.Dependents {
		for _, name := range validateDependent(dep, now) {
			f = append(f, "dependents["+strconv.Itoa(i)+"]."+name)
		}
	}
	return f
}

func validateDependent(dep models.Dependent, now time.Time) fieldErrors {
	var f fieldErrors
	f.require("full_name", dep.FullName)
	f.require("national_id", dep.NationalID)
	f.check("date_of_birth", validDateOfBirth(dep.DateOfBirth, now))
	return f
}

func validateOrganization(org models.Organization) fieldErrors {
	var f fieldErrors
	f.require("name", org.Name)
	f.require("product_type", org.ProductType)
	validateAddress(&f, "address", org.Address)
	f.require("phone", org.Phone)
	for i, fac := range org.Facilities {
		validateAddress(&f, "facilities["+strconv.Itoa(i)+"]", fac)
	}
	return f
}

func allowedAttachment(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, ok := range AllowedAttachmentExts {
		if ext == ok {
			return true
		}
	}
	return false
}

func validBlob(b *models.Blob) bool {
	return b != nil && len(b.Data) > 0 && strings.TrimSpace(b.Filename) != "" && allowedAttachment(b.Filename)
}

// SanitizeFilename strips directories and characters that would break a
// storage path.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "" || name == "." || name == "/" {
		return "document"
	}
	if name == ".." {
		return "document"
	}
	return strings.ReplaceAll(name, " ", "_")
}
