// Package configreader fills a config struct from, in order, a toml or yaml
// file, environment variables and command-line flags. Later sources win.
//
// Each exported field is one parameter. Its name comes from the "name" tag,
// or the snake_case field name, and "-" skips it. Environment variables may
// use the bare upper-case name or carry the program name as a prefix, as in
// YTMENTIONS_SERVICE_URL; the prefixed form wins.
package configreader

import (
	"encoding"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"

	"fknsrs.biz/p/ytmentions/internal/stringutil"
)

const configParameter = "config"

// Read returns an error wrapping flag.ErrHelp when -help was given; usage
// has already been printed by then.
func Read(program string, arguments, environment []string, out interface{}) error {
	a, err := fields(out)
	if err != nil {
		return fmt.Errorf("configreader.Read: %w", err)
	}

	env := environmentMap(programPrefix(program), environment)

	if configPath := configPath(arguments, env, a); configPath != "" {
		if err := readFile(configPath, out); err != nil {
			return fmt.Errorf("configreader.Read: %w", err)
		}
	}

	for _, f := range a {
		s, ok := env[f.name]
		if !ok {
			continue
		}

		if err := f.set(s); err != nil {
			return fmt.Errorf("configreader.Read: environment: %w", err)
		}
	}

	if err := readArguments(program, arguments, a); err != nil {
		return fmt.Errorf("configreader.Read: flags: %w", err)
	}

	return nil
}

type encodingText interface {
	encoding.TextMarshaler
	encoding.TextUnmarshaler
}

var (
	durationType     = reflect.TypeOf(time.Duration(0))
	encodingTextType = reflect.TypeOf((*encodingText)(nil)).Elem()
)

// field is one settable parameter of the config struct.
type field struct {
	name   string
	help   string
	goName string
	value  reflect.Value
}

func fields(out interface{}) ([]field, error) {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return nil, fmt.Errorf("configreader.fields: value must be a non-nil pointer; was instead %T", out)
	}

	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("configreader.fields: value must be a pointer to a struct; was instead %T", out)
	}

	typ := rv.Type()

	var a []field

	for i := 0; i < typ.NumField(); i++ {
		tf := typ.Field(i)
		if !tf.IsExported() {
			continue
		}

		name := tf.Tag.Get("name")
		if name == "" {
			name = stringutil.PascalToSnake(tf.Name)
		}
		if name == "-" {
			continue
		}

		f := field{name: name, help: tf.Tag.Get("help"), goName: tf.Name, value: rv.Field(i)}

		if !f.supported() {
			return nil, fmt.Errorf("configreader.fields: parameter %s (%s) has unsupported type %s", tf.Name, name, tf.Type)
		}

		a = append(a, f)
	}

	return a, nil
}

func (f field) textValue() (encodingText, bool) {
	if !reflect.PointerTo(f.value.Type()).Implements(encodingTextType) {
		return nil, false
	}

	return f.value.Addr().Interface().(encodingText), true
}

func (f field) supported() bool {
	if _, ok := f.textValue(); ok {
		return true
	}

	switch f.value.Kind() {
	case reflect.String, reflect.Bool, reflect.Int, reflect.Int64, reflect.Float64:
		return true
	default:
		return false
	}
}

func (f field) String() string {
	if t, ok := f.textValue(); ok {
		d, err := t.MarshalText()
		if err != nil {
			return ""
		}
		return string(d)
	}

	if f.value.Type() == durationType {
		return time.Duration(f.value.Int()).String()
	}

	return fmt.Sprint(f.value.Interface())
}

func (f field) set(s string) error {
	if t, ok := f.textValue(); ok {
		if err := t.UnmarshalText([]byte(s)); err != nil {
			return fmt.Errorf("could not parse parameter %s (%s): %w", f.goName, f.name, err)
		}

		return nil
	}

	if f.value.Type() == durationType {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("could not parse parameter %s (%s) as duration: %w", f.goName, f.name, err)
		}

		f.value.SetInt(int64(d))

		return nil
	}

	switch f.value.Kind() {
	case reflect.String:
		f.value.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			b = stringutil.LooksTrue(s)
		}
		f.value.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("could not parse parameter %s (%s) as int: %w", f.goName, f.name, err)
		}
		f.value.SetInt(n)
	case reflect.Float64:
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("could not parse parameter %s (%s) as float: %w", f.goName, f.name, err)
		}
		f.value.SetFloat(n)
	}

	return nil
}

// flagValue lets the flag package set a field.
type flagValue struct{ f field }

func (v flagValue) String() string {
	if !v.f.value.IsValid() {
		return ""
	}
	return v.f.String()
}

func (v flagValue) Set(s string) error { return v.f.set(s) }

func (v flagValue) IsBoolFlag() bool {
	return v.f.value.IsValid() && v.f.value.Kind() == reflect.Bool
}

func programPrefix(program string) string {
	name := strings.TrimSuffix(filepath.Base(program), filepath.Ext(program))

	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name)) + "_"
}

// environmentMap indexes the environment by lower-case parameter name. A
// variable carrying prefix overrides the bare one.
func environmentMap(prefix string, environment []string) map[string]string {
	bare := make(map[string]string)
	prefixed := make(map[string]string)

	for _, e := range environment {
		k, v, ok := strings.Cut(e, "=")
		if !ok {
			continue
		}

		if strings.HasPrefix(strings.ToUpper(k), prefix) {
			prefixed[strings.ToLower(k[len(prefix):])] = v
		} else {
			bare[strings.ToLower(k)] = v
		}
	}

	for k, v := range prefixed {
		bare[k] = v
	}

	return bare
}

func configPath(arguments []string, env map[string]string, a []field) string {
	prefix := "-" + configParameter

	for i := 0; i < len(arguments); i++ {
		arg := strings.Replace(arguments[i], "--", "-", 1)

		if arg == prefix && i+1 < len(arguments) {
			return arguments[i+1]
		} else if strings.HasPrefix(arg, prefix+"=") {
			return strings.TrimPrefix(arg, prefix+"=")
		}
	}

	if s, ok := env[configParameter]; ok {
		return s
	}

	for _, f := range a {
		if f.name == configParameter {
			return f.String()
		}
	}

	return ""
}

func readFile(filePath string, out interface{}) error {
	fd, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("configreader.readFile: %w", err)
	}
	defer fd.Close()

	switch filepath.Ext(filePath) {
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(fd).Decode(out); err != nil {
			return fmt.Errorf("configreader.readFile: could not parse %q as yaml: %w", filePath, err)
		}
	case ".toml":
		if err := toml.NewDecoder(fd).Decode(out); err != nil {
			return fmt.Errorf("configreader.readFile: could not parse %q as toml: %w", filePath, err)
		}
	default:
		return fmt.Errorf("configreader.readFile: could not determine file type for %q", filePath)
	}

	return nil
}

func readArguments(program string, arguments []string, a []field) error {
	flagSet := flag.NewFlagSet(program, flag.ContinueOnError)

	flagSet.Usage = func() {
		fmt.Fprintf(flagSet.Output(), "Usage: %s [OPTIONS]\n", program)
		flagSet.PrintDefaults()
	}

	for _, f := range a {
		flagSet.Var(flagValue{f}, f.name, f.help)
	}

	return flagSet.Parse(arguments)
}
