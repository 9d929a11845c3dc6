package main

import (
	stderrors "errors"
	"fmt"
	"os"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/c360/protosignal/errors"
)

// fileResolver resolves imports against the files built so far and falls
// back to the linked-in descriptors, so a set written without
// --include_imports can still use the well-known types.
type fileResolver struct {
	local *protoregistry.Files
}

func (r fileResolver) FindFileByPath(path string) (protoreflect.FileDescriptor, error) {
	fd, err := r.local.FindFileByPath(path)
	if stderrors.Is(err, protoregistry.NotFound) {
		return protoregistry.GlobalFiles.FindFileByPath(path)
	}
	return fd, err
}

func (r fileResolver) FindDescriptorByName(name protoreflect.FullName) (protoreflect.Descriptor, error) {
	d, err := r.local.FindDescriptorByName(name)
	if stderrors.Is(err, protoregistry.NotFound) {
		return protoregistry.GlobalFiles.FindDescriptorByName(name)
	}
	return d, err
}

// loadTypes reads a serialized FileDescriptorSet and returns dynamic types
// for every message and enum it declares. Files must appear after their
// imports, as protoc writes them.
func loadTypes(path string) (*protoregistry.Types, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFatal(err, "main", "loadTypes", "read descriptor set")
	}

	var set descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(data, &set); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"main", "loadTypes", "unmarshal descriptor set")
	}

	files := new(protoregistry.Files)
	types := new(protoregistry.Types)
	for _, fdp := range set.GetFile() {
		if _, err := protoregistry.GlobalFiles.FindFileByPath(fdp.GetName()); err == nil {
			continue
		}
		fd, err := protodesc.NewFile(fdp, fileResolver{local: files})
		if err != nil {
			return nil, errors.WrapInvalid(err, "main", "loadTypes", "build "+fdp.GetName())
		}
		if err := files.RegisterFile(fd); err != nil {
			return nil, errors.WrapInvalid(err, "main", "loadTypes", "register "+fdp.GetName())
		}
		if err := registerTypes(types, fd.Messages(), fd.Enums()); err != nil {
			return nil, errors.WrapInvalid(err, "main", "loadTypes", "register types of "+fdp.GetName())
		}
	}
	return types, nil
}

func registerTypes(types *protoregistry.Types, msgs protoreflect.MessageDescriptors, enums protoreflect.EnumDescriptors) error {
	for i := 0; i < enums.Len(); i++ {
		if err := types.RegisterEnum(dynamicpb.NewEnumType(enums.Get(i))); err != nil {
			return err
		}
	}
	for i := 0; i < msgs.Len(); i++ {
		md := msgs.Get(i)
		if md.IsMapEntry() {
			continue
		}
		if err := types.RegisterMessage(dynamicpb.NewMessageType(md)); err != nil {
			return err
		}
		if err := registerTypes(types, md.Messages(), md.Enums()); err != nil {
			return err
		}
	}
	return nil
}
