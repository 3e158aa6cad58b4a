package mtl

import (
	"github.com/gomlx/gomtl/native"
	"k8s.io/klog/v2"
)

type library struct {
	native native.Library
	device *device
}

func releaseLibrary(l *library) {
	l.native.Release()
}

type function struct {
	native  native.Function
	library *library
}

func releaseFunction(f *function) {
	f.native.Release()
}

// NewLibrary compiles source on the device. Compilation failures return a CompileError with the compiler
// diagnostic.
func (r *Registry) NewLibrary(deviceHandle Handle, source string) (Handle, error) {
	d, err := r.getDevice(deviceHandle, "NewLibrary")
	if err != nil {
		return InvalidHandleValue, err
	}
	nativeLib, err := d.native.NewLibrary(source)
	if err != nil {
		return InvalidHandleValue, r.wrapf(CompileError, err, "failed to compile library on device %q", d.name)
	}
	klog.V(2).Infof("library compiled on device %q with functions %q", d.name, nativeLib.FunctionNames())
	return r.libraries.HandleOf(&library{native: nativeLib, device: d}), nil
}

// LibraryDevice returns a new handle to the device the library was compiled on. The caller must free it.
func (r *Registry) LibraryDevice(h Handle) (Handle, error) {
	l, err := r.libraries.Get(h)
	if err != nil {
		return InvalidHandleValue, r.invalidHandle(err, "LibraryDevice")
	}
	return r.deviceHandle(l.device), nil
}

// LibraryFunctionNames lists the compute functions of the library.
func (r *Registry) LibraryFunctionNames(h Handle) ([]string, error) {
	l, err := r.libraries.Get(h)
	if err != nil {
		return nil, r.invalidHandle(err, "LibraryFunctionNames")
	}
	return l.native.FunctionNames(), nil
}

// FreeLibrary frees the handle. Functions already created from the library remain valid.
func (r *Registry) FreeLibrary(h Handle) {
	r.libraries.Free(h)
}

// NewFunction looks up the compute function name in the library. Unknown names return a SymbolNotFound error.
func (r *Registry) NewFunction(libraryHandle Handle, name string) (Handle, error) {
	l, err := r.libraries.Get(libraryHandle)
	if err != nil {
		return InvalidHandleValue, r.invalidHandle(err, "NewFunction")
	}
	nativeFn, err := l.native.Function(name)
	if err != nil {
		return InvalidHandleValue, r.wrapf(SymbolNotFound, err, "function %q not found in library (functions: %q)",
			name, l.native.FunctionNames())
	}
	return r.functions.HandleOf(&function{native: nativeFn, library: l}), nil
}

// FunctionName returns the name of the function.
func (r *Registry) FunctionName(h Handle) (string, error) {
	f, err := r.functions.Get(h)
	if err != nil {
		return "", r.invalidHandle(err, "FunctionName")
	}
	return f.native.Name(), nil
}

// FunctionDevice returns a new handle to the device of the function's library. The caller must free it.
func (r *Registry) FunctionDevice(h Handle) (Handle, error) {
	f, err := r.functions.Get(h)
	if err != nil {
		return InvalidHandleValue, r.invalidHandle(err, "FunctionDevice")
	}
	return r.deviceHandle(f.library.device), nil
}

// FreeFunction frees the handle.
func (r *Registry) FreeFunction(h Handle) {
	r.functions.Free(h)
}
